package host

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
)

// Banner logs the startup diagnostics at Verbose level.
func Banner(ctx context.Context, logger *slog.Logger, version plugin.APIVersion) {
	logger.Log(ctx, logging.LevelVerbose, "serverboot - Server v"+version.String()+" started.")
	logger.Log(ctx, logging.LevelVerbose, "\tCommand line: "+strings.Join(os.Args, " "))
	logger.Log(ctx, logging.LevelVerbose, "\tOS: "+runtime.GOOS+" (arch: "+runtime.GOARCH+")")
	logger.Log(ctx, logging.LevelVerbose, "\tGo: "+runtime.Version())
}
