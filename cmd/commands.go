package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/acentior/camkit/internal/config"
	"github.com/acentior/camkit/internal/encoders"
	"github.com/acentior/camkit/internal/metrics"
	"github.com/acentior/camkit/internal/preview"
	"github.com/acentior/camkit/internal/signaling"
	"github.com/acentior/camkit/pkg/capture"
	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/recorder"
	"github.com/acentior/camkit/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "camkit",
		Short:        "Capture stills and record clips from a camera",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DeviceID, "device", cfg.DeviceID, "Device ID to open")
	rootCmd.PersistentFlags().StringVar(&cfg.FacingMode, "facing", cfg.FacingMode, "Facing mode: user or environment")
	rootCmd.PersistentFlags().IntVar(&cfg.Width, "camera-width", cfg.Width, "Ideal camera width")
	rootCmd.PersistentFlags().IntVar(&cfg.Height, "camera-height", cfg.Height, "Ideal camera height")
	rootCmd.PersistentFlags().BoolVar(&cfg.Mirror, "mirror", cfg.Mirror, "Mirror the output horizontally")
	rootCmd.PersistentFlags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newCaptureCmd(cfg))
	rootCmd.AddCommand(newRecordCmd(cfg))
	rootCmd.AddCommand(newPreviewCmd(cfg))
	return rootCmd
}

func constraints(cfg *config.Config) media.Constraints {
	return media.Constraints{
		DeviceID:   cfg.DeviceID,
		FacingMode: cfg.FacingMode,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FrameRate:  float32(cfg.FrameRate),
	}
}

// newCoordinator builds a coordinator on the real platform and starts the
// metrics endpoint when one is configured.
func newCoordinator(cfg *config.Config) (*session.Coordinator, error) {
	codec, err := encoders.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr, reg); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}
	return session.New(media.NewPlatform(),
		session.WithMetrics(m),
		session.WithRecorderOptions(recorder.WithDefaultCodec(codec)),
		session.WithErrorHandler(func(err error) { log.Printf("camera error: %v", err) }),
	), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := media.NewPlatform().Devices()
			if len(devices) == 0 {
				return media.ErrDeviceUnsupported
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.DeviceID, d.Label)
			}
			return nil
		},
	}
}

func newCaptureCmd(cfg *config.Config) *cobra.Command {
	var out string
	var settings capture.Settings

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a still image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			coord, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			defer coord.Dispose()

			if _, err := coord.StartCamera(ctx, constraints(cfg)); err != nil {
				return err
			}
			settings.Mirror = cfg.Mirror
			img, err := coord.Capture(ctx, nil, settings)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(cfg.OutputDir, "capture-"+time.Now().Format("20060102-150405")+"."+extension(img.MIMEType))
			}
			if err := os.WriteFile(out, img.Bytes, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%dx%d)\n", out, img.Size.Width, img.Size.Height)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().IntVar(&settings.Width, "width", 0, "Output width")
	cmd.Flags().IntVar(&settings.Height, "height", 0, "Output height")
	cmd.Flags().StringVar(&settings.Format, "format", capture.FormatPNG, "Image format: png or jpeg")
	cmd.Flags().IntVar(&settings.Quality, "quality", capture.DefaultQuality, "JPEG quality")
	return cmd
}

func newRecordCmd(cfg *config.Config) *cobra.Command {
	var out string
	var duration time.Duration
	var settings recorder.Settings

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a clip (Ctrl+C to stop early)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			coord, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			defer coord.Dispose()

			if _, err := coord.StartCamera(ctx, constraints(cfg)); err != nil {
				return err
			}
			settings.Mirror = cfg.Mirror
			settings.FrameRate = cfg.FrameRate
			if _, err := coord.StartRecording(ctx, nil, settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording...\n")

			select {
			case <-ctx.Done():
			case <-time.After(duration):
			}
			return saveClip(cmd, coord, cfg, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "Recording length")
	cmd.Flags().IntVar(&settings.Width, "width", 0, "Output width")
	cmd.Flags().IntVar(&settings.Height, "height", 0, "Output height")
	return cmd
}

func newPreviewCmd(cfg *config.Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Stream a live H.264 preview to a WebRTC viewer while recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.WebsocketURL == "" {
				return fmt.Errorf("WEBSOCKET_URL is not set")
			}
			ctx, cancel := signalContext()
			defer cancel()

			sgl, err := signaling.Dial(ctx, cfg.WebsocketURL)
			if err != nil {
				return err
			}
			defer sgl.Close()

			coord, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			defer coord.Dispose()
			if _, err := coord.StartCamera(ctx, constraints(cfg)); err != nil {
				return err
			}

			p := preview.New(sgl, cfg.StunURL, cfg.FrameRate)
			defer p.Close()
			if err := p.Negotiate(ctx); err != nil {
				return err
			}
			_, err = coord.StartRecording(ctx, nil, recorder.Settings{
				Mirror:    cfg.Mirror,
				FrameRate: cfg.FrameRate,
				Codec:     encoders.H264Codec,
				OnChunk:   p.WriteChunk,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "previewing, Ctrl+C to stop\n")
			<-ctx.Done()

			if out == "" {
				_, err := coord.StopRecording()
				return err
			}
			return saveClip(cmd, coord, cfg, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Also save the previewed clip to this file")
	return cmd
}

func saveClip(cmd *cobra.Command, coord *session.Coordinator, cfg *config.Config, out string) error {
	clip, err := coord.StopRecording()
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Join(cfg.OutputDir, "clip-"+clip.ID+"."+extension(clip.MIMEType))
	}
	if err := os.WriteFile(out, clip.Bytes, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d chunks, %s)\n", out, clip.Chunks, clip.StoppedAt.Sub(clip.StartedAt).Round(time.Millisecond))
	return nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "video/h264":
		return "h264"
	case "video/x-motion-jpeg":
		return "mjpeg"
	}
	return "bin"
}
