package dbConverter

import (
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/internal/model/dbModel"
	"github.com/acalderon/portfolio-valuation/utils"
)

func ConvertAsset(a dbModel.Asset) model.Asset {
	return model.Asset{
		AssetID: a.AssetID,
		Code:    a.Code,
		Name:    a.Name,
	}
}

func ConvertPortfolio(p dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		PortfolioID:   p.PortfolioID,
		Name:          p.Name,
		InitialValue:  p.InitialValue,
		InceptionDate: utils.NormalizeDate(p.InceptionDate),
	}
}

func ConvertTargetWeight(w dbModel.TargetWeight) model.TargetWeight {
	return model.TargetWeight{
		PortfolioID: w.PortfolioID,
		AssetID:     w.AssetID,
		AssetCode:   w.AssetCode,
		Weight:      w.Weight,
	}
}

func ConvertPrice(p dbModel.Price) model.PriceObservation {
	return model.PriceObservation{
		AssetID: p.AssetID,
		Date:    utils.NormalizeDate(p.Date),
		Price:   p.Price,
	}
}

func ConvertQuantityRecord(q dbModel.QuantityRecord) model.QuantityRecord {
	return model.QuantityRecord{
		PortfolioID: q.PortfolioID,
		AssetID:     q.AssetID,
		Date:        utils.NormalizeDate(q.Date),
		Quantity:    q.Quantity,
	}
}

func ConvertPortfolioValue(v dbModel.PortfolioValue) model.PortfolioValue {
	return model.PortfolioValue{
		PortfolioID: v.PortfolioID,
		Date:        utils.NormalizeDate(v.Date),
		TotalValue:  v.TotalValue,
	}
}

func ConvertAssetWeight(w dbModel.AssetWeight) model.AssetWeight {
	return model.AssetWeight{
		PortfolioID: w.PortfolioID,
		AssetID:     w.AssetID,
		AssetCode:   w.AssetCode,
		Date:        utils.NormalizeDate(w.Date),
		Weight:      w.Weight,
		AssetValue:  w.AssetValue,
	}
}

func ConvertTransaction(t dbModel.Transaction) model.Transaction {
	return model.Transaction{
		TransactionID: t.TransactionID,
		PortfolioID:   t.PortfolioID,
		AssetID:       t.AssetID,
		Date:          utils.NormalizeDate(t.Date),
		Type:          model.TransactionType(t.Type),
		Amount:        t.Amount,
		UnitPrice:     t.UnitPrice,
		Quantity:      t.Quantity,
	}
}
