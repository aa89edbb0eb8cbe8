package domain

// DataType is the inferred type of a column.
type DataType string

const (
	TypeNumeric DataType = "numeric"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
	TypeText    DataType = "text"
	TypeUnknown DataType = "unknown"
)

// UnknownDataset is the dataset key of the canonical no-match prediction.
const UnknownDataset = "unknown"

// ColumnLocation is one (dataset, sheet) place where a column occurs.
type ColumnLocation struct {
	Column       string   `json:"column"`
	DatasetKey   string   `json:"dataset_key"`
	SheetName    string   `json:"sheet_name"`
	Confidence   float64  `json:"confidence"`
	DataType     DataType `json:"data_type"`
	UniqueCount  int      `json:"unique_count"`
	SampleValues []string `json:"sample_values"`
}

// PatternKey addresses a ValuePattern.
type PatternKey struct {
	DatasetKey string
	SheetName  string
	Column     string
}

// ValuePattern summarizes the shapes of a column's values.
type ValuePattern struct {
	LiteralPatterns   []string `json:"literal_patterns"`
	NullCount         int      `json:"null_count"`
	UniqueCount       int      `json:"unique_count"`
	MostFrequentValue Value    `json:"most_frequent_value"`
	AvgLength         float64  `json:"avg_length"`
}

// Prediction is the predictor's answer for a column name and optional value.
type Prediction struct {
	DatasetKey string   `json:"dataset_key"`
	SheetName  string   `json:"sheet_name"`
	Confidence float64  `json:"confidence"`
	DataType   DataType `json:"data_type"`
	Message    string   `json:"message"`
}

// NoMatch returns the canonical "no match" prediction.
func NoMatch() Prediction {
	return Prediction{
		DatasetKey: UnknownDataset,
		SheetName:  UnknownDataset,
		Confidence: 0,
		DataType:   TypeUnknown,
		Message:    "no matching column found",
	}
}

// Found reports whether the prediction points at a real location.
func (p Prediction) Found() bool {
	return p.DatasetKey != UnknownDataset
}
