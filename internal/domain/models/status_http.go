package models

// ResultsRequest filters the backtest summaries served by the status API.
type ResultsRequest struct {
	Table    string `query:"table" json:"table" validate:"omitempty,tablename"`
	Strategy string `query:"strategy" json:"strategy" validate:"omitempty,oneof=market_cap_weighted equal_weighted"`
	Limit    int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// ResultRequest addresses a single summary by path.
type ResultRequest struct {
	Table    string `param:"table" json:"table" validate:"required,tablename"`
	Strategy string `param:"strategy" json:"strategy" validate:"required,oneof=market_cap_weighted equal_weighted"`
}
