package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/yourusername/manga-dl-go/pkg/logger"
)

type logList struct {
	Entries []logger.LogEntry `json:"entries"`
	Count   int               `json:"count"`
}

// formatEntry renders one entry as "time level message key=value..."
func formatEntry(entry logger.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return b.String()
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View server logs (tracker, proxy, error)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		category := string(logger.CategoryTracker)
		if len(args) == 1 {
			category = args[0]
		}
		if _, err := logger.ParseCategory(category); err != nil {
			exitOnError(err)
		}

		follow, _ := cmd.Flags().GetBool("follow")
		search, _ := cmd.Flags().GetString("search")
		date, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		show := func(entry logger.LogEntry) {
			if jsonOutput {
				data, _ := json.Marshal(entry)
				fmt.Println(string(data))
				return
			}
			fmt.Println(formatEntry(entry))
		}

		if follow {
			exitOnError(followLogs(category, show))
			return
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if date != "" {
			query.Set("date", date)
		}
		path := "/logs/" + category
		if search != "" {
			path += "/search"
			query.Set("q", search)
		}

		var list logList
		exitOnError(callServer(http.MethodGet, path+"?"+query.Encode(), nil, &list))
		for _, entry := range list.Entries {
			show(entry)
		}
	},
}

// followLogs streams new entries until interrupted
func followLogs(category string, show func(logger.LogEntry)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, websocketURL("/logs/"+category+"/stream"), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var entry logger.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		show(entry)
	}
}

func init() {
	logsCmd.Flags().BoolP("follow", "F", false, "Stream new entries")
	logsCmd.Flags().StringP("search", "q", "", "Only show entries containing this text")
	logsCmd.Flags().StringP("date", "d", "", "Day to read (YYYY-MM-DD), defaults to today")
	logsCmd.Flags().IntP("limit", "n", 100, "Maximum entries to show")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
}
