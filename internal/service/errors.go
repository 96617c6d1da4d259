package service

import "errors"

var (
	ErrAssetNotFound     = errors.New("error asset not found")
	ErrPriceNotFound     = errors.New("error price not found")
	ErrPortfolioNotFound = errors.New("error portfolio not found")
	ErrBatchRejected     = errors.New("error transaction batch rejected")
	ErrLoadAborted       = errors.New("error workbook load aborted")
)
