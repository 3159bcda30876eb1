package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/todo/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	SessionToken string `json:"session_token"`
}

const defaultAPIBase = "http://localhost:4000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "signup":
		err = commandSignup(args)
	case "logout":
		err = commandLogout(args)
	case "list", "ls":
		err = commandList(args)
	case "add":
		err = commandAdd(args)
	case "done":
		err = commandSetCompletion(args, true)
	case "undo":
		err = commandSetCompletion(args, false)
	case "rm":
		err = commandRemove(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.SessionToken = resp.Session.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", resp.User.Email)
	return nil
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*first) == "" {
		return errors.New("--first is required")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := client.Signup(ctx, apiclient.SignupInput{
		FirstName: *first,
		LastName:  *last,
		Email:     *email,
		Password:  secret,
	})
	if err != nil {
		return err
	}
	cfg.SessionToken = resp.Session.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("account created for %s\n", resp.User.Email)
	return nil
}

func commandLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Parse(args)

	cfg, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Signout(ctx, token); err != nil {
		return err
	}
	cfg.SessionToken = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func commandList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the raw grouped payload")
	fs.Parse(args)

	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	grouped, err := client.ListTodos(ctx, token)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(grouped)
	}
	printGrouped(os.Stdout, grouped)
	return nil
}

func printGrouped(out io.Writer, grouped apiclient.GroupedTodos) {
	sections := []struct {
		heading string
		todos   []apiclient.Todo
	}{
		{"Overdue", grouped.Overdue},
		{"Due Today", grouped.DueToday},
		{"Due Later", grouped.DueLater},
		{"Completed Items", grouped.Completed},
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d)\n", s.heading, len(s.todos))
		for _, t := range s.todos {
			mark := "[ ]"
			if t.Completed {
				mark = "[x]"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", mark, t.ID, t.DueDate, t.Title)
		}
	}
	w.Flush()
}

func commandAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "Todo title (at least 5 characters)")
	due := fs.String("due", "", "Due date YYYY-MM-DD (default today)")
	fs.Parse(args)

	if strings.TrimSpace(*title) == "" && fs.NArg() > 0 {
		*title = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(*title) == "" {
		return errors.New("--title is required")
	}
	dueDate := strings.TrimSpace(*due)
	if dueDate == "" {
		dueDate = time.Now().Format(time.DateOnly)
	}

	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	todo, err := client.CreateTodo(ctx, token, *title, dueDate)
	if err != nil {
		return err
	}
	fmt.Printf("todo created: %s (due %s)\n", todo.ID, todo.DueDate)
	return nil
}

func commandSetCompletion(args []string, completed bool) error {
	id, err := singleID(args)
	if err != nil {
		return err
	}
	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	todo, err := client.SetCompletion(ctx, token, id, completed)
	if err != nil {
		return err
	}
	state := "incomplete"
	if todo.Completed {
		state = "completed"
	}
	fmt.Printf("todo %s marked %s\n", todo.ID, state)
	return nil
}

func commandRemove(args []string) error {
	id, err := singleID(args)
	if err != nil {
		return err
	}
	_, client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteTodo(ctx, token, id); err != nil {
		return err
	}
	fmt.Println("todo deleted")
	return nil
}

func singleID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("exactly one todo id is required")
	}
	return strings.TrimSpace(args[0]), nil
}

func readPassword(flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func clientFor(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(apiBase)
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func authedClient() (cliConfig, *apiclient.Client, string, error) {
	cfg, client, err := clientFor("")
	if err != nil {
		return cliConfig{}, nil, "", err
	}
	token := strings.TrimSpace(cfg.SessionToken)
	if token == "" {
		return cliConfig{}, nil, "", errors.New("please login first using 'todo login'")
	}
	return cfg, client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("TODO_CONFIG")); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".todo", "config.json"), nil
}

func printUsage() {
	fmt.Printf("todo CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	todo signup --first Ada [--last Lovelace] --email ada@example.com [--password secret] [--api http://localhost:4000]
	todo login --email ada@example.com [--password secret] [--api http://localhost:4000]
	todo logout
	todo list [--json]
	todo add --title "Water the plants" [--due 2024-06-15]
	todo done <todo-id>
	todo undo <todo-id>
	todo rm <todo-id>
	todo version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
