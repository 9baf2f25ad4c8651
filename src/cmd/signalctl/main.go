package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventservices"
	"github.com/quantfire/signal-dispatch/src/utils"
)

var rootCmd = &cobra.Command{
	Use:   "signalctl",
	Short: "Operational tooling for the signal dispatch server",
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List currently open slots",
	Run: func(cmd *cobra.Command, args []string) {
		baseURL, err := cmd.Flags().GetString("server")
		if err != nil {
			log.Fatalf("error getting server: %v", err)
		}

		resp, err := http.Get(fmt.Sprintf("%s/api/slots", baseURL))
		if err != nil {
			log.Fatalf("error fetching slots: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.Fatalf("server returned %v", resp.Status)
		}

		var slots []eventmodels.Slot
		if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
			log.Fatalf("error parsing slots: %v", err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Slot ID", "User", "Mode", "Symbol", "Ticket", "Opened At", "Age"})

		now := time.Now().UTC()
		for _, s := range slots {
			table.Append([]string{
				s.SlotID,
				s.UserID,
				string(s.Mode),
				s.Symbol,
				fmt.Sprintf("%d", s.Ticket),
				s.OpenedAt.Format(time.RFC3339),
				now.Sub(s.OpenedAt).Round(time.Second).String(),
			})
		}

		table.Render()
	},
}

var exportOutcomesCmd = &cobra.Command{
	Use:   "export-outcomes",
	Short: "Export an audit stream from EventStoreDB to CSV",
	Run: func(cmd *cobra.Command, args []string) {
		streamName, err := cmd.Flags().GetString("stream-name")
		if err != nil {
			log.Fatalf("error getting stream-name: %v", err)
		}

		outFile, err := cmd.Flags().GetString("out")
		if err != nil {
			log.Fatalf("error getting out: %v", err)
		}

		maxCount, err := cmd.Flags().GetUint64("max-count")
		if err != nil {
			log.Fatalf("error getting max-count: %v", err)
		}

		eventStoreDbURL, err := utils.GetEnv("EVENTSTOREDB_URL")
		if err != nil {
			log.Fatalf("$EVENTSTOREDB_URL not set: %v", err)
		}

		settings, err := esdb.ParseConnectionString(eventStoreDbURL)
		if err != nil {
			log.Fatalf("error parsing eventstoredb url: %v", err)
		}

		client, err := esdb.NewClient(settings)
		if err != nil {
			log.Fatalf("error creating eventstoredb client: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		records, err := eventservices.ReadOutcomeStream(ctx, client, streamName, maxCount)
		if err != nil {
			log.Fatalf("error reading stream: %v", err)
		}

		if len(records) == 0 {
			log.Warnf("stream %v is empty, nothing to export", streamName)
			return
		}

		if err := utils.ExportToCsv(&records, outFile); err != nil {
			log.Fatalf("error exporting csv: %v", err)
		}

		log.Infof("exported %d records from %v", len(records), streamName)
	},
}

func main() {
	goEnv := utils.GetEnvOrDefault("GO_ENV", "development")
	if err := utils.InitEnvironmentVariables(goEnv); err != nil {
		log.Warnf("could not load env file: %v", err)
	}

	slotsCmd.Flags().String("server", "http://localhost:8080", "Base URL of the dispatch server.")

	exportOutcomesCmd.Flags().StringP("stream-name", "n", "outcomes", "The eventstore db stream name to export, e.g. admissions, fires or outcomes.")
	exportOutcomesCmd.Flags().StringP("out", "o", "outcomes.csv", "Output CSV file path.")
	exportOutcomesCmd.Flags().Uint64("max-count", 10000, "Maximum number of events to read.")

	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(exportOutcomesCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error running command: %v", err)
	}
}
