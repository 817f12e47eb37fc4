package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clipscribe/client"
	"clipscribe/converter"
	"clipscribe/logging"
)

var (
	serverURL string
	verbose   bool
)

func main() {
	root := &cobra.Command{
		Use:           "clipscribe",
		Short:         "Upload videos for transcription and run prompts against them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "clipscribe server base URL")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(uploadCmd(), completeCmd(), videosCmd(), promptsCmd(), searchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	log, err := logging.New(logging.Options{Verbose: verbose})
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func uploadCmd() *cobra.Command {
	var vocabularyHint string

	cmd := &cobra.Command{
		Use:   "upload <video-file>",
		Short: "Convert a video to audio locally, upload it and transcribe it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			defer log.Sync()

			bar := progressbar.NewOptions64(100,
				progressbar.OptionSetDescription("converting"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(20),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)

			machine := client.NewMachine(func(s client.Status) {
				log.Debug("status changed", zap.String("status", string(s)))
				fmt.Fprintln(os.Stderr, client.StatusMessage(s))
			})

			pipeline := &client.Pipeline{
				Machine: machine,
				Backend: client.NewAPI(serverURL),
				NewJob: func(input string, onProgress func(float64)) client.ConversionJob {
					return converter.NewJob(input, onProgress)
				},
				Logger: log,
			}

			videoID, err := pipeline.Run(cmd.Context(), args[0], vocabularyHint, func(f float64) {
				_ = bar.Set(int(f * 100))
			})
			defer pipeline.Dismiss()
			if err != nil {
				return err
			}

			fmt.Println(videoID)
			return nil
		},
	}
	cmd.Flags().StringVar(&vocabularyHint, "prompt", "",
		"comma-separated words mentioned in the video, to bias recognition")
	return cmd
}

func completeCmd() *cobra.Command {
	var (
		template    string
		promptID    string
		temperature float32
	)

	cmd := &cobra.Command{
		Use:   "complete <video-id>",
		Short: "Stream a templated completion for a transcribed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.NewAPI(serverURL)

			if template == "" && promptID != "" {
				prompts, err := api.ListPrompts(cmd.Context())
				if err != nil {
					return err
				}
				for _, p := range prompts {
					if p.ID == promptID {
						template = p.Template
						break
					}
				}
				if template == "" {
					return fmt.Errorf("unknown prompt id %q", promptID)
				}
			}
			if template == "" {
				return fmt.Errorf("either --template or --prompt-id is required")
			}

			if err := api.Complete(cmd.Context(), args[0], template, temperature, os.Stdout); err != nil {
				return err
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "",
		"prompt template; use {transcription} where the transcript should go")
	cmd.Flags().StringVar(&promptID, "prompt-id", "", "use a template from the server catalog")
	cmd.Flags().Float32Var(&temperature, "temperature", 0.5, "sampling temperature in [0,1]")
	return cmd
}

func videosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "videos",
		Short: "List uploaded videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			videos, err := client.NewAPI(serverURL).ListVideos(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range videos {
				transcribed := "pending"
				if v.Transcription != nil {
					transcribed = "transcribed"
				}
				fmt.Printf("%s  %-12s  %s\n", v.ID, transcribed, v.Name)
			}
			return nil
		},
	}
}

func promptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the server prompt catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := client.NewAPI(serverURL).ListPrompts(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range prompts {
				fmt.Printf("%s\t%s\n", p.ID, p.Title)
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search transcribed videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := client.NewAPI(serverURL).SearchVideos(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%.3f  %s  %s\n", h.Score, h.VideoID, h.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 5, "maximum number of results")
	return cmd
}
