package config

import (
	"os"
	"runtime"
)

const (
	// Default extension CheckM is told to look for.
	DefaultExtension = "fa"

	// Sentinel quality class written for genomes the classifier never
	// reported on.
	SentinelLabel = "Not Found"

	// Sentinel for numeric fields of unclassified genomes.
	SentinelValue = "NA"

	// Default result table names for import and analysis.
	DefaultBasicTable  = "genome_stats"
	DefaultSupplyTable = "genome_quality"
)

var (
	// Default number of worker slots, usually CPU count.
	DefaultWorkers = runtime.NumCPU()

	// Default reference database location, overridable via CHECKM_DATA_PATH.
	DefaultCheckMData = defaultCheckMData()

	// Default index pages scraped for reference database archives.
	DefaultFeedURLs = []string{
		"https://data.ace.uq.edu.au/public/CheckM_databases/",
	}
)

func defaultCheckMData() string {
	if p := os.Getenv("CHECKM_DATA_PATH"); p != "" {
		return p
	}
	return "/opt/checkmData/"
}

// Structure is the input layout override: "auto", "flat" or "nested".
type Structure string

const (
	StructureAuto   Structure = "auto"
	StructureFlat   Structure = "flat"
	StructureNested Structure = "nested"
)

// Thresholds holds the MIMAG quality-class cutoffs. They travel as an
// explicit value rather than package globals so individual runs (and tests)
// can override them.
type Thresholds struct {
	NearCompleteMinCompleteness  float64
	NearCompleteMaxContamination float64
	HighMinCompleteness          float64
	HighMaxContamination         float64
	MediumMinCompleteness        float64
	MediumMaxContamination       float64
}

// DefaultThresholds returns the standard MIMAG cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NearCompleteMinCompleteness:  90,
		NearCompleteMaxContamination: 5,
		HighMinCompleteness:          70,
		HighMaxContamination:         10,
		MediumMinCompleteness:        50,
		MediumMaxContamination:       10,
	}
}

// Config holds application settings.
type Config struct {
	InputDir   string
	OutputPath string
	Structure  Structure
	Extension  string
	Workers    int
	BatchSize  int // 0 partitions by worker count instead
	CheckMData string
	KeepTemp   bool
	DbPath     string
	ParquetDir string
	DataFeeds  []string
	Thresholds Thresholds
}
