package model

// Asset identity is immutable once created: the code is the unique business key.
type Asset struct {
	AssetID int64
	Code    string
	Name    string
}
