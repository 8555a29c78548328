// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guestwin/internal/config"
	"github.com/xkilldash9x/guestwin/internal/host"
	"github.com/xkilldash9x/guestwin/internal/ipc"
	"github.com/xkilldash9x/guestwin/internal/jsbind"
	"github.com/xkilldash9x/guestwin/internal/observability"
	"github.com/xkilldash9x/guestwin/internal/renderer"
)

func newRunCmd() *cobra.Command {
	var (
		transportURL string
		documentURL  string
		hiddenPage   bool
		openerID     int64
		linger       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [script.js]",
		Short: "Connect a renderer to a host and run a script against it",
		Long: `Connects to a host as a new page, installs the window globals (open,
opener, history, document, alert, confirm) into a script runtime and
evaluates the script. The completion value is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("url") {
				cfg.SetTransportURL(transportURL)
			}
			if flags.Changed("document-url") {
				cfg.SetRendererDocumentURL(documentURL)
			}
			if flags.Changed("hidden-page") {
				cfg.SetRendererHiddenPage(hiddenPage)
			}
			if flags.Changed("opener-id") {
				cfg.SetRendererOpenerID(openerID)
			}

			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			return runScript(cmd, cfg, args[0], string(src), linger)
		},
	}

	cmd.Flags().StringVar(&transportURL, "url", "", "host websocket URL (overrides transport.url)")
	cmd.Flags().StringVar(&documentURL, "document-url", "", "URL of the local document")
	cmd.Flags().BoolVar(&hiddenPage, "hidden-page", false, "start with the document hidden")
	cmd.Flags().Int64Var(&openerID, "opener-id", -1, "id of the window that opened this page")
	cmd.Flags().DurationVar(&linger, "linger", 0, "keep handling events for this long after the script returns")
	return cmd
}

func runScript(cmd *cobra.Command, cfg config.Interface, name, src string, linger time.Duration) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	endpoint, err := attachURL(cfg.Transport().URL, cfg.Renderer())
	if err != nil {
		return err
	}
	conn, err := ipc.Dial(ctx, endpoint, connOptions(cfg.Transport(), logger, nil))
	if err != nil {
		return err
	}
	defer conn.Close()

	r, err := renderer.New(conn, cfg.Renderer(), logger)
	if err != nil {
		return err
	}
	defer r.Close()

	bridge := jsbind.New(r, logger)
	defer bridge.Close()

	result, err := bridge.RunScript(ctx, name, src)
	if err != nil {
		return err
	}
	if result != nil {
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}

	if linger > 0 {
		logger.Debug("Lingering for events", zap.Duration("linger", linger))
		timer := time.NewTimer(linger)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		case <-conn.Done():
		}
		// Flush listeners queued while lingering.
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := bridge.RunScript(flushCtx, "flush", "undefined"); err != nil {
			logger.Debug("Flush after linger failed", zap.Error(err))
		}
	}
	return nil
}

// attachURL adds the page description the host needs to the transport URL.
func attachURL(transportURL string, rc config.RendererConfig) (string, error) {
	u, err := url.Parse(transportURL)
	if err != nil {
		return "", fmt.Errorf("parse transport url %q: %w", transportURL, err)
	}
	q := u.Query()
	q.Set(host.ParamURL, rc.DocumentURL)
	if rc.HiddenPage {
		q.Set(host.ParamHidden, "true")
	}
	if rc.OpenerID >= 0 {
		q.Set(host.ParamOpener, strconv.FormatInt(rc.OpenerID, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
