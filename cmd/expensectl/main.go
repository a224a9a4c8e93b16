package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/Devesh-22/expense-tracker-api/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
	Username    string `json:"username,omitempty"`
}

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout()
	case "profile":
		err = commandProfile()
	case "rename":
		err = commandRename(args)
	case "passwd":
		err = commandPasswd()
	case "expense":
		err = commandExpense(args)
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

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}
	secret, err := passwordOrPrompt(*password, "Password: ")
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	user, err := client.Register(ctx, *username, secret)
	if err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", user.Username)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}
	secret, err := passwordOrPrompt(*password, "Password: ")
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	token, err := client.Login(ctx, *username, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = token
	cfg.Username = *username
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandLogout() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.AccessToken = ""
	cfg.Username = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandProfile() error {
	client, token, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	user, err := client.Profile(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("id:       %s\nusername: %s\ncreated:  %s\n", user.ID, user.Username, user.CreatedAt.Format(time.RFC3339))
	return nil
}

func commandRename(args []string) error {
	fs := flag.NewFlagSet("rename", flag.ExitOnError)
	username := fs.String("username", "", "New username")
	fs.Parse(args)
	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}

	client, token, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	user, err := client.UpdateProfile(ctx, token, *username)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err == nil {
		cfg.Username = user.Username
		_ = saveConfig(cfg)
	}
	fmt.Printf("username changed to %s\n", user.Username)
	return nil
}

func commandPasswd() error {
	client, token, err := session()
	if err != nil {
		return err
	}
	oldPassword, err := passwordOrPrompt("", "Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := passwordOrPrompt("", "New password: ")
	if err != nil {
		return err
	}
	confirm, err := passwordOrPrompt("", "Repeat new password: ")
	if err != nil {
		return err
	}
	if newPassword != confirm {
		return errors.New("passwords do not match")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.ChangePassword(ctx, token, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Println("password changed")
	return nil
}

func commandExpense(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: expensectl expense [list|add|update|delete]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return expenseList(args[1:])
	case "add":
		return expenseAdd(args[1:])
	case "update":
		return expenseUpdate(args[1:])
	case "delete":
		return expenseDelete(args[1:])
	default:
		return fmt.Errorf("unknown expense command: %s", sub)
	}
}

func expenseList(args []string) error {
	fs := flag.NewFlagSet("expense list", flag.ExitOnError)
	category := fs.String("category", "", "Only show this category")
	limit := fs.Int("limit", 0, "Maximum number of expenses to display")
	fs.Parse(args)

	client, token, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	expenses, err := client.ListExpenses(ctx, token)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	var total float64
	shown := 0
	for _, e := range expenses {
		if *category != "" && !strings.EqualFold(e.Category, *category) {
			continue
		}
		if *limit > 0 && shown >= *limit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", e.ID, e.Date, e.Category, e.Amount, e.Description)
		total += e.Amount
		shown++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d expenses, total %.2f\n", shown, total)
	return nil
}

func expenseAdd(args []string) error {
	fs := flag.NewFlagSet("expense add", flag.ExitOnError)
	description := fs.String("description", "", "What the money was spent on")
	amount := fs.Float64("amount", 0, "Amount spent")
	category := fs.String("category", "", "Category")
	date := fs.String("date", "", "Date (YYYY-MM-DD, default today)")
	fs.Parse(args)

	if strings.TrimSpace(*description) == "" {
		return errors.New("--description is required")
	}
	if *amount <= 0 {
		return errors.New("--amount must be positive")
	}
	if strings.TrimSpace(*category) == "" {
		return errors.New("--category is required")
	}

	client, token, err := session()
	if err != nil {
		return err
	}
	input := apiclient.ExpenseInput{
		Description: description,
		Amount:      amount,
		Category:    category,
	}
	if strings.TrimSpace(*date) != "" {
		input.Date = date
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	expense, err := client.CreateExpense(ctx, token, input)
	if err != nil {
		return err
	}
	fmt.Printf("expense created: %s (%.2f %s on %s)\n", expense.ID, expense.Amount, expense.Category, expense.Date)
	return nil
}

func expenseUpdate(args []string) error {
	fs := flag.NewFlagSet("expense update", flag.ExitOnError)
	id := fs.String("id", "", "Expense identifier")
	description := fs.String("description", "", "New description")
	amount := fs.Float64("amount", 0, "New amount")
	category := fs.String("category", "", "New category")
	date := fs.String("date", "", "New date (YYYY-MM-DD)")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var input apiclient.ExpenseInput
	if set["description"] {
		input.Description = description
	}
	if set["amount"] {
		input.Amount = amount
	}
	if set["category"] {
		input.Category = category
	}
	if set["date"] {
		input.Date = date
	}
	if input == (apiclient.ExpenseInput{}) {
		return errors.New("nothing to update; pass at least one of --description, --amount, --category, --date")
	}

	client, token, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	expense, err := client.UpdateExpense(ctx, token, *id, input)
	if err != nil {
		return err
	}
	fmt.Printf("expense updated: %s (%.2f %s on %s)\n", expense.ID, expense.Amount, expense.Category, expense.Date)
	return nil
}

func expenseDelete(args []string) error {
	fs := flag.NewFlagSet("expense delete", flag.ExitOnError)
	id := fs.String("id", "", "Expense identifier")
	fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, token, err := session()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := client.DeleteExpense(ctx, token, *id); err != nil {
		return err
	}
	fmt.Println("expense deleted")
	return nil
}

func session() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'expensectl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func passwordOrPrompt(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: apiclient.DefaultBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = apiclient.DefaultBaseURL
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
	if override := strings.TrimSpace(os.Getenv("EXPENSECTL_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "expensectl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("expensectl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	expensectl register --username alice [--password secret] [--api http://localhost:3000]
	expensectl login --username alice [--password secret] [--api http://localhost:3000]
	expensectl logout
	expensectl profile
	expensectl rename --username <new-name>
	expensectl passwd
	expensectl expense list [--category food] [--limit N]
	expensectl expense add --description <text> --amount <n> --category <name> [--date YYYY-MM-DD]
	expensectl expense update --id <expense-id> [--description ..] [--amount ..] [--category ..] [--date ..]
	expensectl expense delete --id <expense-id>
	expensectl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
