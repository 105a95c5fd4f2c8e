package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"race-telemetry/internal/api"
	"race-telemetry/internal/bridge"
	"race-telemetry/internal/config"
	"race-telemetry/internal/ingest"
	"race-telemetry/internal/models"
	"race-telemetry/internal/stats"
	"race-telemetry/internal/store"
	"race-telemetry/internal/ws"

	"github.com/relvacode/iso8601"
	"github.com/spf13/cobra"
)

var (
	cfgDir   string
	dataFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "race-telemetry",
		Short: "Race Telemetry Server - live ingest, storage and broadcast of racing telemetry",
		Long: `A server for ingesting periodic telemetry readings from a racing device
(engine sensors, GPS, cooling, system health), persisting them to an
append-only CSV file, and broadcasting them in real time to connected
dashboard viewers over WebSocket.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data", "", "Path to telemetry CSV file (overrides config)")

	// Add commands
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies the global overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgDir)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if dataFile != "" {
		cfg.Storage.DataFile = dataFile
	}
	return cfg, nil
}

// serverCmd starts the HTTP/WebSocket server.
func serverCmd() *cobra.Command {
	var port int
	var withMQTT bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the telemetry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			st, err := store.Open(cfg.Storage.DataFile)
			if err != nil {
				return fmt.Errorf("store error: %w", err)
			}
			defer st.Close()

			hub := ws.NewHub(st)
			go hub.Run()

			ing := ingest.New(st, hub)
			server := api.NewServer(st, hub, ing)

			if withMQTT || cfg.MQTT.Enabled {
				br := bridge.New(cfg.MQTT.Host, cfg.MQTT.Port, cfg.MQTT.Topic, cfg.MQTT.ClientID, ing)
				go func() {
					if err := br.Run(context.Background()); err != nil {
						log.Printf("MQTT bridge stopped: %v", err)
					}
				}()
			}

			addr := fmt.Sprintf(":%d", cfg.Server.Port)

			fmt.Printf("🏁 Race Telemetry Server\n")
			fmt.Printf("   Listening on http://localhost%s\n", addr)
			fmt.Printf("   Data file: %s\n\n", st.Path())
			fmt.Println("Endpoints:")
			fmt.Println("  POST /api/telemetry")
			fmt.Println("  GET  /api/history?limit=N")
			fmt.Println("  GET  /api/stats")
			fmt.Println("  GET  /ws (WebSocket)")
			fmt.Println("  GET  /health")
			fmt.Println()

			return http.ListenAndServe(addr, server.Router())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default from config, 7187)")
	cmd.Flags().BoolVar(&withMQTT, "mqtt", false, "Also run the MQTT ingest bridge")
	return cmd
}

// simulateCmd posts generated telemetry to a running server, standing
// in for the device during local development.
func simulateCmd() *cobra.Command {
	var target string
	var device string
	var count int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate and send sample telemetry to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := []string{"NORMAL", "NORMAL", "NORMAL", "RECORDING", "ERROR"}
			texts := []string{"idle", "cruising", "hard acceleration"}

			sent := 0
			for i := 0; i < count; i++ {
				p := models.Payload{
					DeviceID:     device,
					SystemStatus: statuses[rand.Intn(len(statuses))],
					LapNumber:    i / 20,
					Sensors: &models.Sensors{
						AFR:         11.5 + rand.Float64()*3,
						RPM:         1000 + rand.Float64()*9000,
						Temperature: 70 + rand.Float64()*40,
						TPS:         rand.Float64() * 100,
						MAPValue:    20 + rand.Float64()*80,
						Incline:     -10 + rand.Float64()*20,
						Stroke:      rand.Float64() * 10,
					},
					GPS: &models.GPS{
						Latitude:   -7.7956 + (rand.Float64()-0.5)*0.01,
						Longitude:  110.3695 + (rand.Float64()-0.5)*0.01,
						Speed:      rand.Float64() * 180,
						Satellites: 4 + rand.Intn(10),
					},
					AIClassification: &models.AIClassification{
						Classification:     float64(rand.Intn(len(texts))),
						ClassificationText: texts[rand.Intn(len(texts))],
					},
					Cooling: &models.Cooling{
						SystemActive: true,
						FanOn:        rand.Intn(2) == 0,
						CurrentTemp:  60 + rand.Float64()*30,
					},
					SystemHealth: &models.SystemHealth{
						FreeHeap: 150000 + int64(rand.Intn(100000)),
						Uptime:   int64(i) * interval.Milliseconds(),
						WiFiRSSI: -80 + rand.Intn(40),
					},
				}

				body, err := json.Marshal(p)
				if err != nil {
					return err
				}

				resp, err := http.Post(target+"/api/telemetry", "application/json", bytes.NewReader(body))
				if err != nil {
					return fmt.Errorf("send error after %d records: %w", sent, err)
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					fmt.Printf("  server answered %s for record %d\n", resp.Status, i+1)
				} else {
					sent++
				}

				if i < count-1 {
					time.Sleep(interval)
				}
			}

			fmt.Printf("✓ Sent %d/%d telemetry records to %s\n", sent, count, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "http://localhost:7187", "Server base URL")
	cmd.Flags().StringVarP(&device, "device", "d", "sim-001", "Device ID to report")
	cmd.Flags().IntVarP(&count, "count", "c", 10, "Number of records to send")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Delay between records")
	return cmd
}

// historyCmd prints recent rows straight from the CSV file.
func historyCmd() *cobra.Command {
	var limit int
	var since string
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent telemetry records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Storage.DataFile)
			if err != nil {
				return fmt.Errorf("store error: %w", err)
			}
			defer st.Close()

			rows, err := st.Tail(limit)
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}

			if since != "" {
				cutoff, err := iso8601.ParseString(since)
				if err != nil {
					return fmt.Errorf("invalid --since value (use ISO-8601): %w", err)
				}
				filtered := rows[:0]
				for _, r := range rows {
					ts, err := iso8601.ParseString(r.Timestamp)
					if err != nil {
						continue
					}
					if !ts.Before(cutoff) {
						filtered = append(filtered, r)
					}
				}
				rows = filtered
			}

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			default:
				fmt.Printf("Showing %d records\n\n", len(rows))
				for _, r := range rows {
					fmt.Printf("[%s] %s | lap %s | RPM: %s | Temp: %s | Speed: %s | %s\n",
						r.Timestamp, r.DeviceID, r.LapNumber, r.RPM, r.Temperature, r.Speed, r.SystemStatus)
				}
				return nil
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum records to show")
	cmd.Flags().StringVarP(&since, "since", "s", "", "Only records at or after this ISO-8601 time")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// statsCmd prints the aggregate summary over the whole data file.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate telemetry statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Storage.DataFile)
			if err != nil {
				return fmt.Errorf("store error: %w", err)
			}
			defer st.Close()

			rows, err := st.ScanAll()
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}

			summary := stats.Compute(rows)
			if summary.TotalRecords == 0 {
				fmt.Println("No telemetry recorded yet. Use 'race-telemetry simulate' to send sample data.")
				return nil
			}

			fmt.Println("📊 Race Telemetry Statistics")
			fmt.Println("============================")
			fmt.Printf("  Total Records:  %d\n", summary.TotalRecords)
			if ts, err := iso8601.ParseString(summary.LastUpdate); err == nil {
				fmt.Printf("  Last Update:    %s (%v ago)\n", summary.LastUpdate, time.Since(ts).Round(time.Second))
			} else {
				fmt.Printf("  Last Update:    %s\n", summary.LastUpdate)
			}
			fmt.Println()

			printField := func(name string, fs *models.FieldStats) {
				fmt.Printf("  %-12s avg %10.2f | min %10.2f | max %10.2f | latest %10.2f\n",
					name, fs.Avg, fs.Min, fs.Max, fs.Latest)
			}
			printField("RPM", summary.RPM)
			printField("Temperature", summary.Temperature)
			printField("AFR", summary.AFR)
			printField("TPS", summary.TPS)
			printField("MAP", summary.MAPValue)

			return nil
		},
	}
}
