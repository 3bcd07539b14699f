package main

import (
	"fmt"
	"io"
	"os"

	"mercury-client/internal/models"
	"mercury-client/internal/testgen"

	"github.com/spf13/cobra"
)

var (
	genAuthors    int
	genRelays     int
	genMinRelays  int
	genMaxRelays  int
	genNotes      int
	genDeleteRate int
	genSeed       int64
	genOut        string

	genCmd = &cobra.Command{
		Use:   "gen",
		Short: "Generate a signed synthetic event stream",
		Long: `Generates authors spread over a pool of relays, each with a relay list,
some text notes and occasional deletions, and writes them as JSON lines
suitable for the replay command.`,
		RunE: runGen,
	}
)

func init() {
	genCmd.Flags().IntVar(&genAuthors, "authors", 50, "number of authors")
	genCmd.Flags().IntVar(&genRelays, "relays", 12, "size of the relay pool")
	genCmd.Flags().IntVar(&genMinRelays, "min-relays", 1, "minimum write relays per author")
	genCmd.Flags().IntVar(&genMaxRelays, "max-relays", 4, "maximum write relays per author")
	genCmd.Flags().IntVar(&genNotes, "notes", 10, "text notes per author")
	genCmd.Flags().IntVar(&genDeleteRate, "delete-every", 5, "delete one note out of this many (0 disables deletions)")
	genCmd.Flags().Int64Var(&genSeed, "seed", 1, "random seed")
	genCmd.Flags().StringVarP(&genOut, "out", "o", "", "output file (default stdout)")
}

func runGen(cmd *cobra.Command, args []string) error {
	if genAuthors <= 0 || genRelays <= 0 {
		return fmt.Errorf("authors and relays must be positive")
	}

	g := testgen.NewGenerator(genSeed)
	relays := make([]string, genRelays)
	for i := range relays {
		relays[i] = fmt.Sprintf("wss://relay%02d.example.com", i+1)
	}

	var events []*models.Event
	for _, p := range g.Network(genAuthors, relays, genMinRelays, genMaxRelays) {
		events = append(events, g.RelayList(p, g.Tick()))
		for i := 0; i < genNotes; i++ {
			note := g.TextNote(p, fmt.Sprintf("%s note %d", p.Name, i), g.Tick())
			events = append(events, note)
			if genDeleteRate > 0 && (i+1)%genDeleteRate == 0 {
				events = append(events, g.Deletion(p, g.Tick(), []string{note.ID}, nil))
			}
		}
	}

	var w io.Writer = cmd.OutOrStdout()
	if genOut != "" {
		f, err := os.Create(genOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", genOut, err)
		}
		defer f.Close()
		w = f
	}

	return testgen.WriteJSONL(w, events)
}
