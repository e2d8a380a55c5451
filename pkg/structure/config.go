package structure

import (
	"github.com/quatton/expodist/pkg/assembly"
	"github.com/quatton/expodist/pkg/export"
)

// Config holds the naming and content settings of the distribution tree.
type Config struct {
	// RootName is the top folder of the tree and the object key prefix.
	RootName string
	// ArchiveName is the file name of every archive and index listing.
	ArchiveName     string
	PayloadName     string
	SignatureName   string
	FileHeader      string
	FileHeaderWidth int
	SignatureInfo   export.SignatureInfo

	// HourFileRetentionDays limits hour folders to dates after today minus this many days.
	HourFileRetentionDays int
	// IncludeIncompleteDays also publishes the date archive of the current day.
	IncludeIncompleteDays bool
	// TraceWarningCountries are the countries with a trace warning package.
	TraceWarningCountries []string
}

// DefaultConfig returns the production naming scheme.
func DefaultConfig() Config {
	return Config{
		RootName:              RootName,
		ArchiveName:           assembly.IndexFileName,
		PayloadName:           assembly.DefaultPayloadName,
		SignatureName:         assembly.DefaultSignatureName,
		FileHeader:            export.DefaultFileHeader,
		FileHeaderWidth:       export.DefaultFileHeaderWidth,
		HourFileRetentionDays: 2,
		TraceWarningCountries: []string{"DE"},
	}
}
