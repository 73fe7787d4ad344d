// Package tracker is the facade the command line surfaces talk to. Every
// operation reads or writes through the session resolver and the projection
// syncer, so all surfaces observe the same user.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"spendbook/internal/aggregate"
	"spendbook/internal/auth"
	"spendbook/internal/avatar"
	"spendbook/internal/models"
	"spendbook/internal/notify"
	"spendbook/internal/projection"
	"spendbook/internal/session"
	"spendbook/internal/storage"
)

// Options configures a Service. Zero values pick defaults.
type Options struct {
	Logger        *slog.Logger
	Hub           *notify.Hub
	Now           func() time.Time
	AvatarMaxSide int
}

// Service implements the account, expense and reporting operations.
type Service struct {
	records       *storage.Records
	resolver      *session.Resolver
	syncer        *projection.Syncer
	hub           *notify.Hub
	logger        *slog.Logger
	now           func() time.Time
	avatarMaxSide int
}

// New returns a Service over store.
func New(store storage.RecordStore, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = notify.NewHub(logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxSide := opts.AvatarMaxSide
	if maxSide <= 0 {
		maxSide = avatar.DefaultMaxSide
	}

	records := storage.NewRecords(store, logger)
	return &Service{
		records:       records,
		resolver:      session.NewResolver(records, logger),
		syncer:        projection.NewSyncer(records, hub, logger),
		hub:           hub,
		logger:        logger.With("component", "tracker"),
		now:           now,
		avatarMaxSide: maxSide,
	}
}

// Subscribe registers l for user events. The returned function unsubscribes.
func (s *Service) Subscribe(l notify.Listener) func() {
	return s.hub.Subscribe(l)
}

// SignupInput holds the fields of the signup form.
type SignupInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

func validEmail(email string) error {
	switch {
	case models.NormalizeIdentity(email) == "":
		return &models.ValidationError{Field: "email", Message: "email is required"}
	case !strings.Contains(email, "@"):
		return &models.ValidationError{Field: "email", Message: "email is invalid"}
	}
	return nil
}

func (in SignupInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &models.ValidationError{Field: "name", Message: "name is required"}
	}
	if err := validEmail(in.Email); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(in.Phone) == "":
		return &models.ValidationError{Field: "phone", Message: "phone is required"}
	case in.Password == "":
		return &models.ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// Signup registers a new account with no expenses. It does not log in.
// Both the email and the display name must be unused.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	users, err := s.records.Users(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	for i := range users {
		if strings.EqualFold(strings.TrimSpace(users[i].Name), name) {
			return nil, models.ErrDuplicateUser
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Email:    strings.TrimSpace(in.Email),
		Name:     name,
		Phone:    strings.TrimSpace(in.Phone),
		Password: hash,
		Expenses: []models.Expense{},
	}
	if err := s.syncer.Insert(ctx, u); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user signed up", "identity", u.Identity())
	return u.Clone(), nil
}

// Login checks the credentials and makes the user current. A clear-text
// credential from an older record is replaced by a hash.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	identity := models.NormalizeIdentity(email)
	if identity == "" || password == "" {
		return nil, &models.ValidationError{Message: "email and password are required"}
	}

	users, err := s.records.Users(ctx)
	if err != nil {
		return nil, err
	}
	i := storage.FindUser(users, identity)
	if i < 0 || !auth.CheckPassword(password, users[i].Password) {
		s.logger.InfoContext(ctx, "login failed", "identity", identity)
		return nil, models.ErrInvalidCredentials
	}

	user := users[i].Clone()
	if auth.NeedsUpgrade(user.Password) {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user, err = s.syncer.Commit(ctx, identity, func(u *models.User) error {
			u.Password = hash
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "upgraded stored credential", "identity", identity)
		return user, nil
	}

	if user.Normalize() {
		users[i] = *user.Clone()
		if err := s.records.SaveUsers(ctx, users); err != nil {
			return nil, err
		}
	}
	if err := s.resolver.Login(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", "identity", identity)
	return user, nil
}

// Logout ends the session.
func (s *Service) Logout(ctx context.Context) error {
	identity := ""
	if u, err := s.resolver.Resolve(ctx); err == nil {
		identity = u.Identity()
	}
	if err := s.resolver.Logout(ctx); err != nil {
		return err
	}
	s.hub.Publish(ctx, notify.Event{Kind: notify.SessionEnded, Identity: identity})
	return nil
}

// Current returns the logged-in user.
func (s *Service) Current(ctx context.Context) (*models.User, error) {
	return s.resolver.Resolve(ctx)
}

// commit applies patch to the logged-in user.
func (s *Service) commit(ctx context.Context, patch projection.Patch) (*models.User, error) {
	current, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.syncer.Commit(ctx, current.Identity(), patch)
}

// ExpenseInput holds the fields of the expense form.
type ExpenseInput struct {
	Name     string
	Amount   float64
	Category string
	Date     time.Time
}

func (in ExpenseInput) expense(now time.Time) (models.Expense, error) {
	e := models.Expense{
		Name:     strings.TrimSpace(in.Name),
		Amount:   in.Amount,
		Category: models.NormalizeCategory(in.Category),
		Date:     in.Date,
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	e.Date = e.Date.UTC().Truncate(time.Second)
	return e, e.Validate()
}

// AddExpense appends an expense to the logged-in user's list. A zero date
// means now.
func (s *Service) AddExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	e, err := in.expense(s.now())
	if err != nil {
		return nil, err
	}
	e.ID = models.NewExpenseID()

	if _, err := s.commit(ctx, func(u *models.User) error {
		u.Expenses = append(u.Expenses, e)
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "expense added", "id", e.ID, "category", e.Category)
	return &e, nil
}

// EditExpense replaces the fields of the expense with the given id. A zero
// date keeps the stored date.
func (s *Service) EditExpense(ctx context.Context, id string, in ExpenseInput) (*models.Expense, error) {
	var edited models.Expense
	_, err := s.commit(ctx, func(u *models.User) error {
		i := u.ExpenseIndex(id)
		if i < 0 {
			return models.ErrExpenseNotFound
		}
		if in.Date.IsZero() {
			in.Date = u.Expenses[i].Date
		}
		e, err := in.expense(s.now())
		if err != nil {
			return err
		}
		e.ID = id
		u.Expenses[i] = e
		edited = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &edited, nil
}

// DeleteExpense removes the expense with the given id.
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(u *models.User) error {
		i := u.ExpenseIndex(id)
		if i < 0 {
			return models.ErrExpenseNotFound
		}
		u.Expenses = append(u.Expenses[:i], u.Expenses[i+1:]...)
		return nil
	})
	return err
}

// DeleteExpenseAt removes the expense shown at position index of the rows
// Dashboard returns for q. The row is resolved to its id against the same
// list the delete is applied to.
func (s *Service) DeleteExpenseAt(ctx context.Context, q Query, index int) error {
	_, err := s.commit(ctx, func(u *models.User) error {
		rows := aggregate.Filter(u.Expenses, q.Search, q.category())
		if index < 0 || index >= len(rows) {
			return models.ErrExpenseNotFound
		}
		i := u.ExpenseIndex(rows[index].ID)
		if i < 0 {
			return models.ErrExpenseNotFound
		}
		u.Expenses = append(u.Expenses[:i], u.Expenses[i+1:]...)
		return nil
	})
	return err
}

func validBudget(b float64) error {
	if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
		return &models.ValidationError{Field: "budget", Message: "budget must be zero or a positive number"}
	}
	return nil
}

// SetBudget sets the logged-in user's monthly budget. Zero disables alerts.
func (s *Service) SetBudget(ctx context.Context, budget float64) (*models.User, error) {
	if err := validBudget(budget); err != nil {
		return nil, err
	}
	return s.commit(ctx, func(u *models.User) error {
		u.Budget = budget
		return nil
	})
}

// ProfileUpdate lists profile changes. Nil fields are left alone. The
// password changes only when Password is set and equals ConfirmPassword.
type ProfileUpdate struct {
	Name               *string
	Email              *string
	FirstName          *string
	LastName           *string
	Phone              *string
	Address            *string
	About              *string
	FrequentCategories *string
	ProfilePic         *string
	Budget             *float64
	Password           string
	ConfirmPassword    string
}

func (p ProfileUpdate) validate() error {
	if p.Password != "" && p.Password != p.ConfirmPassword {
		return &models.ValidationError{Field: "password", Message: "passwords do not match"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &models.ValidationError{Field: "name", Message: "name is required"}
	}
	if p.Email != nil {
		if err := validEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Budget != nil {
		return validBudget(*p.Budget)
	}
	return nil
}

// UpdateProfile merges upd into the logged-in user.
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*models.User, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	var hash string
	if upd.Password != "" {
		var err error
		if hash, err = auth.HashPassword(upd.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	return s.commit(ctx, func(u *models.User) error {
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&u.Name, upd.Name)
		set(&u.Email, upd.Email)
		set(&u.FirstName, upd.FirstName)
		set(&u.LastName, upd.LastName)
		set(&u.Phone, upd.Phone)
		set(&u.Address, upd.Address)
		set(&u.About, upd.About)
		set(&u.FrequentCategories, upd.FrequentCategories)
		set(&u.ProfilePic, upd.ProfilePic)
		if upd.Budget != nil {
			u.Budget = *upd.Budget
		}
		if hash != "" {
			u.Password = hash
		}
		return nil
	})
}

// SetAvatar encodes the picture read from r and stores it on the logged-in
// user. Nothing is written if ctx is cancelled before the picture is ready.
func (s *Service) SetAvatar(ctx context.Context, r io.Reader) (*models.User, error) {
	uri, err := avatar.Encode(ctx, r, s.avatarMaxSide)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, func(u *models.User) error {
		u.ProfilePic = uri
		return nil
	})
}

// DeleteAccount removes the logged-in user and ends the session.
func (s *Service) DeleteAccount(ctx context.Context) error {
	current, err := s.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	if err := s.syncer.Remove(ctx, current.Identity()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account deleted", "identity", current.Identity())
	return nil
}

// Query narrows the expenses a dashboard or report shows.
type Query struct {
	Search   string
	Category string
	From     time.Time
	To       time.Time
}

// category maps the "All" choice to no category filter.
func (q Query) category() string {
	c := strings.TrimSpace(q.Category)
	if c == "" || strings.EqualFold(c, "all") {
		return ""
	}
	return models.NormalizeCategory(c)
}

// View is what a dashboard or report renders: the matching rows and the
// aggregates over them, plus the alert over the whole list.
type View struct {
	User     *models.User
	Expenses []models.Expense
	Summary  aggregate.Summary
	Shares   []aggregate.Share
	Alert    aggregate.Alert
}

// Dashboard returns every expense matching the search and category together
// with the budget state of the whole list.
func (s *Service) Dashboard(ctx context.Context, q Query) (*View, error) {
	user, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	rows := aggregate.Filter(user.Expenses, q.Search, q.category())
	return &View{
		User:     user,
		Expenses: rows,
		Summary:  aggregate.Summarize(rows, user.Budget),
		Shares:   aggregate.Shares(rows),
		Alert:    aggregate.BudgetAlert(aggregate.Total(user.Expenses), user.Budget),
	}, nil
}

// Report is Dashboard restricted to a date range. Zero bounds are open.
func (s *Service) Report(ctx context.Context, q Query) (*View, error) {
	user, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	rows := aggregate.FilterRange(user.Expenses, q.From, q.To)
	rows = aggregate.Filter(rows, q.Search, q.category())
	return &View{
		User:     user,
		Expenses: rows,
		Summary:  aggregate.Summarize(rows, user.Budget),
		Shares:   aggregate.Shares(rows),
		Alert:    aggregate.BudgetAlert(aggregate.Total(user.Expenses), user.Budget),
	}, nil
}
