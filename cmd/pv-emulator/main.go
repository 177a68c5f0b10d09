package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pv-emulator/config"
	"pv-emulator/internal/api"
	"pv-emulator/internal/client"
	"pv-emulator/internal/conditions"
	"pv-emulator/internal/mqtt"
	"pv-emulator/internal/storage"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pv-emulator",
		Short: "Solar PV emulator",
		Long:  "Store PV module nameplate parameters and simulate I-V / P-V curves with a single-diode model",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(modulesCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API, open the module database and, when configured, the MQTT publisher and live-conditions provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			log.Printf("Database opened at %s", cfg.Database.Path)

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				defer publisher.Close()
			}

			server := api.NewServer(api.ServerConfig{
				Port:        cfg.Server.Port,
				Database:    db,
				Publisher:   publisher,
				Conditions:  conditionsProvider(cfg),
				AuthToken:   cfg.Server.AuthToken,
				CORSOrigins: cfg.Server.CORSOrigins,
			})

			go func() {
				if err := server.Start(); err != nil {
					log.Printf("API server error: %v", err)
				}
			}()

			log.Println("PV Emulator started. Press Ctrl+C to stop.")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			log.Println("Shutting down...")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(ctx)
		},
	}
}

func modulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Work with stored PV modules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			service := client.NewModuleService(newTransport(cfg), log.Default())
			modules, err := service.List(cmd.Context(), nil, nil)
			if err != nil {
				return err
			}

			output, _ := json.MarshalIndent(modules, "", "  ")
			fmt.Println(string(output))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete one or more modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid module id %q", arg)
				}
				ids = append(ids, id)
			}

			service := client.NewModuleService(newTransport(cfg), log.Default())
			confirmations := service.DeleteMany(cmd.Context(), ids)
			for _, confirmation := range confirmations {
				fmt.Println(confirmation)
			}
			fmt.Printf("%d of %d deleted\n", len(confirmations), len(ids))
			return nil
		},
	})

	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		temperature float64
		irradiance  float64
		live        bool
		full        bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <module-id>",
		Short: "Simulate the I-V curve of a stored module",
		Long:  "Request an I-V / P-V curve simulation; defaults to standard test conditions unless overrides or --live are given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			moduleID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid module id %q", args[0])
			}

			transport := newTransport(cfg)

			var tempArg, irrArg *float64
			if cmd.Flags().Changed("temperature") {
				tempArg = &temperature
			}
			if cmd.Flags().Changed("irradiance") {
				irrArg = &irradiance
			}

			if live {
				data, err := fetchLiveConditions(cmd.Context(), transport)
				if err != nil {
					return fmt.Errorf("failed to fetch live conditions: %w", err)
				}
				fmt.Printf("Live conditions (%s): %.1f C, %.0f W/m2\n", data.Source, data.Temperature, data.Irradiance)
				tempArg = &data.Temperature
				irrArg = &data.Irradiance
			}

			service := client.NewSimulationService(transport, log.Default())
			result, err := service.Simulate(cmd.Context(), moduleID, tempArg, irrArg)
			if err != nil {
				return err
			}

			if full {
				output, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("Module %d (%s mode, %.0f W/m2, %.1f C)\n",
				result.ModuleID, result.Mode, result.Irradiance, result.Temperature)
			fmt.Printf("  Voc: %8.3f V\n", result.Summary.Voc)
			fmt.Printf("  Isc: %8.3f A\n", result.Summary.Isc)
			fmt.Printf("  Vmp: %8.3f V\n", result.Summary.Vmp)
			fmt.Printf("  Imp: %8.3f A\n", result.Summary.Imp)
			fmt.Printf("  Pmp: %8.3f W\n", result.Summary.Pmp)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 25, "cell temperature override in C")
	cmd.Flags().Float64VarP(&irradiance, "irradiance", "g", 1000, "irradiance override in W/m2")
	cmd.Flags().BoolVar(&live, "live", false, "use live ambient conditions from the server")
	cmd.Flags().BoolVar(&full, "full", false, "print the full curve payload as JSON")

	return cmd
}

func newTransport(cfg *config.Config) *client.Transport {
	tokens := &client.MemoryTokenStore{}
	if cfg.Client.Token != "" {
		tokens.Set(cfg.Client.Token)
	}
	return client.NewTransport(cfg.Client.BaseURL, tokens, log.Default())
}

func fetchLiveConditions(ctx context.Context, transport *client.Transport) (*conditions.Data, error) {
	resp, err := transport.Get(ctx, "/conditions/live", nil)
	if err != nil {
		return nil, err
	}

	var data conditions.Data
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func conditionsProvider(cfg *config.Config) conditions.Provider {
	if !cfg.Conditions.Enabled {
		return nil
	}

	switch cfg.Conditions.Provider {
	case "sensor", "modbus":
		return conditions.NewSensorClient(conditions.SensorConfig{
			IP:                  cfg.Conditions.SensorIP,
			Port:                cfg.Conditions.SensorPort,
			SlaveID:             cfg.Conditions.SensorSlaveID,
			Timeout:             cfg.Conditions.SensorTimeout,
			TemperatureRegister: cfg.Conditions.TemperatureRegister,
			TemperatureScale:    cfg.Conditions.TemperatureScale,
			IrradianceRegister:  cfg.Conditions.IrradianceRegister,
			IrradianceScale:     cfg.Conditions.IrradianceScale,
		})
	case "openmeteo", "open-meteo", "open_meteo":
		return conditions.NewOpenMeteoClient(cfg.Conditions.Latitude, cfg.Conditions.Longitude)
	default:
		log.Printf("Conditions provider not supported: %s", cfg.Conditions.Provider)
		return nil
	}
}
