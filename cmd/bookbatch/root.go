package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	config "github.com/tigerroll/bookbatch/pkg/batch/core/config"
)

const (
	flagEnvFile   = "env-file"
	flagLogLevel  = "log-level"
	flagChunkSize = "chunk-size"
	flagInput     = "input"
	flagOutput    = "output"

	envPrefix = "BOOKBATCH"
)

// runOptions are the command line overrides of the loaded configuration.
// Zero values leave the configuration untouched.
type runOptions struct {
	EnvFile   string
	LogLevel  string
	ChunkSize int
	Input     string
	Output    string
}

// apply copies the set options onto cfg.
func (o runOptions) apply(cfg *config.Config) {
	if o.LogLevel != "" {
		cfg.Surfin.System.Logging.Level = strings.ToUpper(o.LogLevel)
	}
	if o.ChunkSize != 0 {
		cfg.Surfin.Batch.ChunkSize = o.ChunkSize
	}
	if o.Input != "" {
		cfg.App.Input.Path = o.Input
	}
	if o.Output != "" {
		cfg.App.Output.Path = o.Output
	}
}

// newRootCommand builds the CLI. Every flag of "run" can also be given as
// BOOKBATCH_<FLAG> (e.g. BOOKBATCH_CHUNK_SIZE); an explicit flag wins.
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "bookbatch",
		Short:         "Load books from XML into a database table and a delimited file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the book job once",
		Long: `Run the book job once: read every <book> fragment of the input XML, insert it into
the book table and append it to the output file, committing both every chunk-size items.
The process exits with status 1 when the job does not complete.

Relative paths are resolved against the working directory. The default input,
resources/books.xml, is only found when running from the repository root; pass
--input (or BOOKBATCH_INPUT) to run from anywhere else.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				EnvFile:   v.GetString(flagEnvFile),
				LogLevel:  v.GetString(flagLogLevel),
				ChunkSize: v.GetInt(flagChunkSize),
				Input:     v.GetString(flagInput),
				Output:    v.GetString(flagOutput),
			}
			return runJob(cmd.Context(), opts, embeddedConfig, cmd.OutOrStdout())
		},
	}

	flags := run.Flags()
	flags.String(flagEnvFile, ".env", "path of the .env file loaded before the configuration")
	flags.String(flagLogLevel, "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flags.Int(flagChunkSize, 0, "number of items per transaction")
	flags.String(flagInput, "", "path of the input XML document, relative to the working directory (default resources/books.xml)")
	flags.String(flagOutput, "", "path of the output delimited file")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(run)
	return root
}
