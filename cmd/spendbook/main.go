package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"spendbook/internal/app"
	"spendbook/internal/config"
	"spendbook/internal/export"
	"spendbook/internal/models"
	"spendbook/internal/tracker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `Usage: spendbook [-env file] [-store backend] [-db path] <command> [flags]

Commands:
  signup          create an account
  login           log in
  logout          log out
  whoami          show the logged-in user
  add             add an expense
  edit            edit an expense
  delete          delete an expense by -id or -index
  budget          set the monthly budget
  profile         update profile fields
  avatar          set the profile picture from an image file
  list            list expenses
  summary         show totals and the budget alert
  report          show totals for a date range
  export          write expenses as csv or pdf
  delete-account  delete the logged-in account
`

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"signup":         cmdSignup,
	"login":          cmdLogin,
	"logout":         cmdLogout,
	"whoami":         cmdWhoami,
	"add":            cmdAdd,
	"edit":           cmdEdit,
	"delete":         cmdDelete,
	"budget":         cmdBudget,
	"profile":        cmdProfile,
	"avatar":         cmdAvatar,
	"list":           cmdList,
	"summary":        cmdSummary,
	"report":         cmdReport,
	"export":         cmdExport,
	"delete-account": cmdDeleteAccount,
}

type cli struct {
	svc    *tracker.Service
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("spendbook", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	envFile := fs.String("env", config.EnvFileFromEnv(), "Path to .env file")
	store := fs.String("store", "", "Record store backend (memory, sqlite, redis, postgres)")
	dbPath := fs.String("db", "", "Path to database file for the sqlite store")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *store != "" {
		cfg.Store = *store
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}

	a, err := app.Open(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	in := stdin
	if _, isFile := stdin.(*os.File); !isFile {
		in = bufio.NewReader(stdin)
	}
	return cmd(ctx, &cli{svc: a.Service, stdin: in, stdout: stdout, stderr: stderr}, fs.Args()[1:])
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) password(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(c.stdout, prompt)
	pw, err := app.ReadPassword(c.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(c.stdout)
	return pw, nil
}

func cmdSignup(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("signup")
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "Email")
	phone := fs.String("phone", "", "Phone number")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := c.password(*passwordFlag, "Password: ")
	if err != nil {
		return err
	}

	u, err := c.svc.Signup(ctx, tracker.SignupInput{Name: *name, Email: *email, Phone: *phone, Password: password})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			return fmt.Errorf("user already exists, please login instead")
		}
		return err
	}

	fmt.Fprintf(c.stdout, "Signed up %s. Please login with your credentials.\n", u.Email)
	return nil
}

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "Email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := c.password(*passwordFlag, "Password: ")
	if err != nil {
		return err
	}

	u, err := c.svc.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Welcome, %s\n", u.Name)
	return nil
}

func cmdLogout(ctx context.Context, c *cli, _ []string) error {
	if err := c.svc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, c *cli, _ []string) error {
	u, err := c.svc.Current(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	if u.Phone != "" {
		fmt.Fprintf(tw, "Phone:\t%s\n", u.Phone)
	}
	if u.Address != "" {
		fmt.Fprintf(tw, "Address:\t%s\n", u.Address)
	}
	if u.About != "" {
		fmt.Fprintf(tw, "About:\t%s\n", u.About)
	}
	if cats := u.FrequentCategoryList(); len(cats) > 0 {
		fmt.Fprintf(tw, "Frequent categories:\t%s\n", strings.Join(cats, ", "))
	}
	fmt.Fprintf(tw, "Budget:\t%s\n", money(u.Budget))
	fmt.Fprintf(tw, "Expenses:\t%d\n", len(u.Expenses))
	if u.ProfilePic != "" {
		fmt.Fprintf(tw, "Avatar:\tset\n")
	}
	return tw.Flush()
}

type expenseFlags struct {
	name     *string
	amount   *string
	category *string
	date     *string
}

func addExpenseFlags(fs *flag.FlagSet) expenseFlags {
	return expenseFlags{
		name:     fs.String("name", "", "Expense name"),
		amount:   fs.String("amount", "", "Amount"),
		category: fs.String("category", "", "Category ("+strings.Join(models.Categories, ", ")+")"),
		date:     fs.String("date", "", "Date (YYYY-MM-DD, default today)"),
	}
}

func (f expenseFlags) input(base *models.Expense) (tracker.ExpenseInput, error) {
	var in tracker.ExpenseInput
	if base != nil {
		in = tracker.ExpenseInput{Name: base.Name, Amount: base.Amount, Category: base.Category, Date: base.Date}
	}
	if *f.name != "" {
		in.Name = *f.name
	}
	if *f.amount != "" {
		amount, err := models.ParseAmount(*f.amount)
		if err != nil {
			return in, err
		}
		in.Amount = amount
	}
	if *f.category != "" {
		in.Category = *f.category
	}
	if *f.date != "" {
		d, err := models.ParseDate(*f.date)
		if err != nil {
			return in, &models.ValidationError{Field: "date", Message: err.Error()}
		}
		in.Date = d
	}
	return in, nil
}

func cmdAdd(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("add")
	ef := addExpenseFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	in, err := ef.input(nil)
	if err != nil {
		return err
	}
	e, err := c.svc.AddExpense(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Added %s (%s) %s\n", e.Name, e.Category, money(e.Amount))
	return alertLine(ctx, c)
}

func cmdEdit(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("edit")
	id := fs.String("id", "", "Expense id")
	ef := addExpenseFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("missing required flags: id")
	}

	u, err := c.svc.Current(ctx)
	if err != nil {
		return err
	}
	i := u.ExpenseIndex(*id)
	if i < 0 {
		return models.ErrExpenseNotFound
	}

	in, err := ef.input(&u.Expenses[i])
	if err != nil {
		return err
	}
	e, err := c.svc.EditExpense(ctx, *id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Updated %s (%s) %s\n", e.Name, e.Category, money(e.Amount))
	return alertLine(ctx, c)
}

func cmdDelete(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("delete")
	id := fs.String("id", "", "Expense id")
	index := fs.Int("index", -1, "Row number shown by list with the same -search and -category")
	qf := addQueryFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := qf.query()
	if err != nil {
		return err
	}

	switch {
	case *id != "":
		err = c.svc.DeleteExpense(ctx, *id)
	case *index >= 0:
		err = c.svc.DeleteExpenseAt(ctx, q, *index)
	default:
		return errors.New("missing required flags: id or index")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Deleted")
	return nil
}

func cmdBudget(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: spendbook budget <amount>")
	}
	budget, err := strconv.ParseFloat(strings.ReplaceAll(args[0], ",", "."), 64)
	if err != nil {
		return &models.ValidationError{Field: "budget", Message: fmt.Sprintf("invalid budget %q", args[0])}
	}

	u, err := c.svc.SetBudget(ctx, budget)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Budget set to %s\n", money(u.Budget))
	return alertLine(ctx, c)
}

func cmdProfile(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("profile")
	fields := map[string]*string{
		"name":       fs.String("name", "", "Display name"),
		"email":      fs.String("email", "", "Email"),
		"first-name": fs.String("first-name", "", "First name"),
		"last-name":  fs.String("last-name", "", "Last name"),
		"phone":      fs.String("phone", "", "Phone number"),
		"address":    fs.String("address", "", "Address"),
		"about":      fs.String("about", "", "About you"),
		"categories": fs.String("categories", "", "Frequent categories, comma separated"),
	}
	budget := fs.String("budget", "", "Monthly budget")
	changePassword := fs.Bool("change-password", false, "Prompt for a new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	pick := func(name string) *string {
		if set[name] {
			return fields[name]
		}
		return nil
	}

	upd := tracker.ProfileUpdate{
		Name:               pick("name"),
		Email:              pick("email"),
		FirstName:          pick("first-name"),
		LastName:           pick("last-name"),
		Phone:              pick("phone"),
		Address:            pick("address"),
		About:              pick("about"),
		FrequentCategories: pick("categories"),
	}
	if set["budget"] {
		b, err := strconv.ParseFloat(*budget, 64)
		if err != nil {
			return &models.ValidationError{Field: "budget", Message: fmt.Sprintf("invalid budget %q", *budget)}
		}
		upd.Budget = &b
	}
	if *changePassword {
		var err error
		if upd.Password, err = c.password("", "New password: "); err != nil {
			return err
		}
		if upd.ConfirmPassword, err = c.password("", "Confirm password: "); err != nil {
			return err
		}
	}

	u, err := c.svc.UpdateProfile(ctx, upd)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Profile saved for %s\n", u.Name)
	return nil
}

func cmdAvatar(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: spendbook avatar <image file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	profile, err := c.svc.Mount(ctx, nil)
	if err != nil {
		return err
	}
	defer profile.Close()
	stop := context.AfterFunc(ctx, profile.Close)
	defer stop()

	u, err := c.svc.SetAvatar(profile.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Profile picture updated for %s\n", u.Name)
	return nil
}

type queryFlags struct {
	search   *string
	category *string
	from     *string
	to       *string
}

func addQueryFlags(fs *flag.FlagSet, withRange bool) queryFlags {
	q := queryFlags{
		search:   fs.String("search", "", "Match name, category or date"),
		category: fs.String("category", "", "Only this category (All for every category)"),
	}
	if withRange {
		q.from = fs.String("from", "", "First day (YYYY-MM-DD)")
		q.to = fs.String("to", "", "Last day (YYYY-MM-DD)")
	}
	return q
}

func (q queryFlags) query() (tracker.Query, error) {
	out := tracker.Query{Search: *q.search, Category: *q.category}
	parse := func(field, s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.ParseInLocation(models.DayKeyLayout, s, time.UTC)
		if err != nil {
			return time.Time{}, &models.ValidationError{Field: field, Message: fmt.Sprintf("invalid date %q", s)}
		}
		return t, nil
	}
	var err error
	if q.from != nil {
		if out.From, err = parse("from", *q.from); err != nil {
			return out, err
		}
	}
	if q.to != nil {
		if out.To, err = parse("to", *q.to); err != nil {
			return out, err
		}
	}
	return out, nil
}

func cmdList(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("list")
	qf := addQueryFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := qf.query()
	if err != nil {
		return err
	}

	view, err := c.svc.Dashboard(ctx, q)
	if err != nil {
		return err
	}
	return writeExpenses(c.stdout, view.Expenses)
}

func cmdSummary(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("summary")
	qf := addQueryFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := qf.query()
	if err != nil {
		return err
	}

	view, err := c.svc.Dashboard(ctx, q)
	if err != nil {
		return err
	}
	return writeView(c.stdout, view)
}

func cmdReport(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("report")
	qf := addQueryFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := qf.query()
	if err != nil {
		return err
	}

	view, err := c.svc.Report(ctx, q)
	if err != nil {
		return err
	}
	if err := writeView(c.stdout, view); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout)
	return writeExpenses(c.stdout, view.Expenses)
}

func cmdExport(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("export")
	format := fs.String("format", "csv", "Output format (csv or pdf)")
	out := fs.String("out", "", "Output file (default stdout)")
	qf := addQueryFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := export.ParseFormat(*format)
	if err != nil {
		return err
	}
	q, err := qf.query()
	if err != nil {
		return err
	}
	view, err := c.svc.Report(ctx, q)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Expenses for %s", view.User.Name)
	if *out == "" {
		return export.Write(c.stdout, f, title, view.Expenses)
	}

	if err := writeExport(*out, f, title, view.Expenses); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Exported %d expenses to %s\n", len(view.Expenses), *out)
	return nil
}

// writeExport writes the export to path. A failed close is reported like a
// failed write.
func writeExport(path string, f export.Format, title string, expenses []models.Expense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(file, f, title, expenses); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func cmdDeleteAccount(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("delete-account")
	yes := fs.Bool("yes", false, "Confirm deletion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("refusing to delete the account without -yes")
	}

	if err := c.svc.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Account deleted")
	return nil
}
