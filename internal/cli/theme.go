package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lazypower/sounddrop/internal/engine"
)

var themeDate string

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Print the theme of a day",
	RunE:  runTheme,
}

func init() {
	themeCmd.Flags().StringVarP(&themeDate, "date", "d", "", "Day to show (YYYY-MM-DD, default today)")
}

func runTheme(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	opts := engine.DefaultOptions()
	opts.Location = loc
	eng := engine.New(nil, nil, opts, zerolog.Nop())

	day := eng.Now()
	if themeDate != "" {
		if day, err = eng.ParseDate(themeDate); err != nil {
			return err
		}
	}

	theme := eng.ThemeFor(day)
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n\n%s\n", day.In(loc).Format(engine.DateLayout), theme.Title, theme.Description)
	return nil
}
