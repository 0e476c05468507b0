package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/Diffusion-planet/ip-to-portrait/internal/historystore"
	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/printer"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage/remote"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	ServerURL  string
	ClientID   string
	StateDir   string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	app.Flag("server-url", "Base URL of the generation server.").Envar("PORTRAIT_SERVER_URL").Default("http://localhost:8000").StringVar(&c.ServerURL)
	app.Flag("client-id", "Client identifier for websocket routing, random by default.").Envar("PORTRAIT_CLIENT_ID").StringVar(&c.ClientID)

	defaultStateDir := filepath.Join(homedir.HomeDir(), ".portrait")
	app.Flag("state-dir", "Directory holding credentials and local state.").Envar("PORTRAIT_STATE_DIR").Default(defaultStateDir).StringVar(&c.StateDir)

	defaultDBPath := filepath.Join(defaultStateDir, "history.db")
	app.Flag("db-path", "Path to the local SQLite history database.").Envar("PORTRAIT_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	return c
}

// clientID returns the configured client id, generating a random one when
// unset.
func (c *RootCommand) clientID() string {
	if c.ClientID == "" {
		c.ClientID = strings.ToLower(ulid.Make().String())
	}
	return c.ClientID
}

// wsURL derives the base websocket URL from the server URL. The websocket
// client appends /ws/{clientID} itself.
func (c *RootCommand) wsURL() string {
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/")
}

// newHistoryService wires the remote and local history stores behind the
// routing service.
func newHistoryService(ctx context.Context, rootCmd *RootCommand, logger log.Logger) (*historystore.Service, error) {
	credentials, err := historystore.NewFileCredentialStore(historystore.FileCredentialStoreConfig{
		Dir:    rootCmd.StateDir,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create credential store: %w", err)
	}

	remoteRepo, err := remote.NewRepository(remote.RepositoryConfig{
		ServerURL:   rootCmd.ServerURL,
		TokenSource: credentials,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create remote repository: %w", err)
	}

	localRepo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create local repository: %w", err)
	}

	svc, err := historystore.NewService(historystore.ServiceConfig{
		Remote:      remoteRepo,
		Local:       localRepo,
		Credentials: credentials,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create history service: %w", err)
	}

	return svc, nil
}

// newPrinter selects the output printer for the given format.
func newPrinter(format string, out io.Writer) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(out)
	default: // table
		return printer.NewTablePrinter(out)
	}
}
