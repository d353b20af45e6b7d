package app

// AppState represents the different views of the application.
type AppState int

const (
	ShowMenu AppState = iota
	RunningQuality
	ComputingStats
	FetchingRefDB
	AnalyzingData
	ShowError
	Exiting
)
