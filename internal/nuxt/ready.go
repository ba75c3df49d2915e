package nuxt

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/webhook"
)

// ShowReady prints the listening banner, starts sending the ready webhook when
// one is configured and, if openBrowser is true, opens the URL in a browser.
// It does not wait for the webhook.
func (n *Nuxt) ShowReady(openBrowser bool) {
	url := n.URL()

	mode := n.options.Mode
	if config.SSREnabled(n.options) {
		mode += " (ssr)"
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Fprint(n.out, "✔ Listening on: ")
	fmt.Fprintln(n.out, color.New(color.Underline).Sprint(url))
	fmt.Fprintf(n.out, "  Mode: %s\n", color.CyanString(mode))

	if hook := n.options.ReadyWebhook; hook.URL != "" {
		req := webhook.Request{
			URL:          hook.URL,
			Method:       hook.Method,
			Payload:      webhook.NewReadyEvent(url, n.options.Mode, config.SSREnabled(n.options)),
			SharedSecret: hook.SharedSecret,
		}
		// Sent in the background; Close cancels a request still in flight.
		n.bg.Add(1)
		go func() {
			defer n.bg.Done()
			n.notifier.Send(n.bgCtx, req)
		}()
	}

	if openBrowser && url != "" {
		if err := n.openBrowser(url); err != nil {
			n.logger.Warn("Could not open browser", zap.String("url", url), zap.Error(err))
		}
	}
}

// openBrowser launches the platform URL handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
