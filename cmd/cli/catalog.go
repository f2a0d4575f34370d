package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search [title]",
	Short: "Search a source, or every source, for a title",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		title := strings.Join(args, " ")
		source, _ := cmd.Flags().GetString("source")
		all, _ := cmd.Flags().GetBool("all")

		client := catalogClient()
		ctx := context.Background()

		results := map[string][]domain.Comic{}
		if all {
			var err error
			results, err = client.SearchAll(ctx, title)
			exitOnError(err)
		} else {
			if source == "" {
				exitOnError(fmt.Errorf("--source is required unless --all is set"))
			}
			comics, err := client.Search(ctx, title, source)
			exitOnError(err)
			results[source] = comics
		}

		sources := make([]string, 0, len(results))
		for s := range results {
			sources = append(sources, s)
		}
		sort.Strings(sources)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tID\tTITLE\tLANGUAGES")
		found := 0
		for _, s := range sources {
			for _, c := range results[s] {
				found++
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					s,
					c.ID,
					truncate(c.DisplayTitle(), 50),
					strings.Join(c.AvailableLanguages, ","))
			}
		}
		w.Flush()

		if found == 0 {
			fmt.Println("No comics found")
		}
	},
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters [comic-id]",
	Short: "List the chapters of a comic",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		source, _ := cmd.Flags().GetString("source")

		chapters, err := catalogClient().Chapters(context.Background(), args[0], source)
		exitOnError(err)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VOLUME\tCHAPTER\tID")
		for _, ch := range chapters {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ch.Volume, ch.Number, ch.ID)
		}
		w.Flush()
		fmt.Printf("%d chapters\n", len(chapters))
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show the health of every content source",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		health, err := catalogClient().SourceHealth(context.Background())
		exitOnError(err)

		names := make([]string, 0, len(health))
		for name := range health {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tSTATUS")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, health[name])
		}
		w.Flush()
	},
}

// chapterRange reads --from/--to into a range; unset flags leave the bound open
func chapterRange(cmd *cobra.Command) domain.ChapterRange {
	var r domain.ChapterRange
	if cmd.Flags().Changed("from") {
		from, _ := cmd.Flags().GetFloat64("from")
		r.From = &from
	}
	if cmd.Flags().Changed("to") {
		to, _ := cmd.Flags().GetFloat64("to")
		r.To = &to
	}
	return r
}

// addSelectionFlags registers the flags shared by add and download
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "Content source ID")
	cmd.Flags().StringP("title", "t", "", "Comic title used for the archive name")
	cmd.Flags().StringP("format", "f", string(domain.FormatPDF), "Archive format (pdf, cbz, cbr, epub)")
	cmd.Flags().Float64("from", 0, "First chapter number to download")
	cmd.Flags().Float64("to", 0, "Last chapter number to download")
	_ = cmd.MarkFlagRequired("source")
}

// buildRequest lists the comic's chapters and selects the requested range
func buildRequest(cmd *cobra.Command, catalog domain.Catalog, comicID string) (domain.EnqueueRequest, error) {
	source, _ := cmd.Flags().GetString("source")
	title, _ := cmd.Flags().GetString("title")
	format, _ := cmd.Flags().GetString("format")

	chapters, err := catalog.Chapters(context.Background(), comicID, source)
	if err != nil {
		return domain.EnqueueRequest{}, err
	}

	req := domain.EnqueueRequest{
		ComicID:    comicID,
		ComicTitle: title,
		Source:     source,
		Format:     domain.ArchiveFormat(format),
		Chapters:   domain.SelectChapters(chapters, chapterRange(cmd)),
	}
	if err := req.Validate(); err != nil {
		return domain.EnqueueRequest{}, err
	}
	return req, nil
}

func init() {
	searchCmd.Flags().StringP("source", "s", "", "Content source ID")
	searchCmd.Flags().BoolP("all", "a", false, "Search every source")
	chaptersCmd.Flags().StringP("source", "s", "", "Content source ID")
	_ = chaptersCmd.MarkFlagRequired("source")
}
