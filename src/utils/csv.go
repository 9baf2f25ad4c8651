package utils

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
)

// ExportToCsv writes the rows to outFile for offline consumers. Existing
// files are not overwritten.
func ExportToCsv(rows interface{}, outFile string) error {
	if _, err := os.Stat(outFile); err == nil {
		return fmt.Errorf("ExportToCsv: %s already exists", outFile)
	}

	file, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("ExportToCsv: error creating CSV file: %v", err)
	}

	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("ExportToCsv: failed to marshal rows: %v", err)
	}

	log.Infof("Exported csv to %s", outFile)
	return nil
}
