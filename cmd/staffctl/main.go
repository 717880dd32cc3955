/**
 * @description
 * staffctl is a terminal client for the staff portal. It signs in with a
 * one-time code, asks the navigation guard where a path leads, and edits a
 * day's care log through the same autosaving editor the app screen uses.
 *
 * Usage:
 *   staffctl login -phone 9876543210
 *   staffctl route -path /jobs
 *   staffctl log -date 2024-03-05 -set activities='["walk"]'
 *   staffctl clock-in|clock-out -date 2024-03-05
 *   staffctl range -from 2024-03-01 -to 2024-03-07
 *   staffctl jobs -status available
 *   staffctl logout
 */
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/editor"
	"github.com/vishwadoshi-19/zense-staff/pkg/portalclient"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2ECC71"))
	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
)

// setFlags collects repeated -set field=json arguments.
type setFlags []string

func (s *setFlags) String() string     { return strings.Join(*s, ",") }
func (s *setFlags) Set(v string) error { *s = append(*s, v); return nil }

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := portalclient.NewClient(envOr("STAFFCTL_URL", "http://localhost:8080"), os.Getenv("STAFFCTL_TOKEN"))
	if err := run(ctx, client, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: staffctl <login|logout|session|route|log|clock-in|clock-out|range|jobs> [flags]")
}

func run(ctx context.Context, client *portalclient.Client, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	today := domain.DateKey(time.Now())

	switch cmd {
	case "login":
		phone := fs.String("phone", "", "phone number to sign in with")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return login(ctx, client, *phone)

	case "logout":
		if err := client.SignOut(ctx); err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("signed out"))
		return nil

	case "session":
		s, err := client.Session(ctx)
		if err != nil {
			return err
		}
		return printJSON("session", s)

	case "route":
		path := fs.String("path", "/", "app path to check")
		if err := fs.Parse(args); err != nil {
			return err
		}
		d, err := client.Route(ctx, *path)
		if err != nil {
			return err
		}
		if d.Target != "" {
			fmt.Printf("%s %s -> %s\n", titleStyle.Render(d.Action), *path, d.Target)
		} else {
			fmt.Printf("%s %s\n", titleStyle.Render(d.Action), *path)
		}
		return nil

	case "log":
		date := fs.String("date", today, "day to edit (YYYY-MM-DD)")
		var sets setFlags
		fs.Var(&sets, "set", "field=json to save; may be repeated")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return editLog(ctx, client, *date, sets)

	case "clock-in", "clock-out":
		date := fs.String("date", today, "day (YYYY-MM-DD)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var (
			rec portalclient.Record
			err error
		)
		if cmd == "clock-in" {
			rec, err = client.ClockIn(ctx, *date)
		} else {
			rec, err = client.ClockOut(ctx, *date)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s total %s\n", titleStyle.Render(cmd), string(rec["totalHours"]))
		return nil

	case "range":
		from := fs.String("from", today, "first day")
		to := fs.String("to", today, "last day")
		if err := fs.Parse(args); err != nil {
			return err
		}
		userID, err := currentUserID(ctx, client)
		if err != nil {
			return err
		}
		entries, err := client.TaskRange(ctx, userID, *from, *to)
		if err != nil {
			return err
		}
		for _, e := range entries {
			hours := "-"
			if e.Data != nil {
				hours = strings.Trim(string(e.Data["totalHours"]), `"`)
			}
			fmt.Printf("%s  %s\n", keyStyle.Render(e.Date), hours)
		}
		return nil

	case "jobs":
		status := fs.String("status", "", "all|available|assigned|ongoing|completed|rejected")
		if err := fs.Parse(args); err != nil {
			return err
		}
		userID, err := currentUserID(ctx, client)
		if err != nil {
			return err
		}
		jobs, err := client.Jobs(ctx, userID, *status)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s  %-10s %s, %s (%d)  %s\n",
				keyStyle.Render(j.ID), j.Status, j.SubDistrict, j.District, j.Pincode, j.CustomerName)
		}
		return nil
	}

	usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func login(ctx context.Context, client *portalclient.Client, phone string) error {
	if strings.TrimSpace(phone) == "" {
		return errors.New("-phone is required")
	}
	verificationID, err := client.SendOTP(ctx, phone)
	if err != nil {
		var apiErr *portalclient.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return fmt.Errorf("%s (retry in %ds)", apiErr.Message, apiErr.RetryAfter)
		}
		return err
	}

	fmt.Print("code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}

	resp, err := client.VerifyOTP(ctx, verificationID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("signed in"))
	if resp.IsNewUser {
		fmt.Println("finish onboarding in the app to start taking jobs")
	}
	fmt.Printf("export STAFFCTL_TOKEN=%s\n", resp.Token)
	return nil
}

func currentUserID(ctx context.Context, client *portalclient.Client) (string, error) {
	if client.Token() == "" {
		return "", errors.New("not signed in; run staffctl login and export STAFFCTL_TOKEN")
	}
	s, err := client.Session(ctx)
	if err != nil {
		return "", err
	}
	if !s.Authenticated || s.Identity == nil {
		return "", errors.New("session is not authenticated")
	}
	return s.Identity.UserID, nil
}

// editLog loads date into the editor, applies each -set, then prints the record.
func editLog(ctx context.Context, client *portalclient.Client, date string, sets []string) error {
	userID, err := currentUserID(ctx, client)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ed := editor.NewDailyLogEditor(client, userID, logger)

	if err := ed.SelectDate(ctx, date); err != nil {
		return err
	}
	for _, s := range sets {
		field, raw, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("-set %q: want field=json", s)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("-set %s: %w", field, err)
		}
		if err := ed.Set(ctx, field, value); err != nil {
			return err
		}
	}

	rec := ed.Record()
	fields := make([]string, 0, len(rec))
	for k := range rec {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	fmt.Println(titleStyle.Render("daily log " + date))
	for _, k := range fields {
		fmt.Printf("%s %s\n", keyStyle.Render(fmt.Sprintf("%-14s", k)), string(rec[k]))
	}
	return nil
}

func printJSON(title string, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(title))
	fmt.Println(string(out))
	return nil
}
