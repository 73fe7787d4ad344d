package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"spendbook/internal/avatar"
	"spendbook/internal/logging"
	"spendbook/internal/models"
	"spendbook/internal/storage"
	"spendbook/internal/tracker"

	"github.com/stretchr/testify/suite"
)

var fixedNow = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

type HandlersTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *storage.MemoryStore
	svc     *tracker.Service
	h       *Handlers
	records *storage.Records
}

func (s *HandlersTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStore()
	s.records = storage.NewRecords(s.store, logging.Discard())
	s.svc = tracker.New(s.store, tracker.Options{
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})
	s.h = NewHandlers(s.svc, logging.Discard())
	s.h.now = func() time.Time { return fixedNow }
}

func (s *HandlersTestSuite) loggedIn() {
	_, err := s.svc.Signup(s.ctx, tracker.SignupInput{Name: "Ann", Email: "ann@x.io", Phone: "555", Password: "pw"})
	s.Require().NoError(err)
	_, err = s.svc.Login(s.ctx, "ann@x.io", "pw")
	s.Require().NoError(err)
}

func (s *HandlersTestSuite) add(name string, amount float64, category string, day int) *models.Expense {
	e, err := s.svc.AddExpense(s.ctx, tracker.ExpenseInput{
		Name: name, Amount: amount, Category: category,
		Date: time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	return e
}

func (s *HandlersTestSuite) current() *models.User {
	u, err := s.svc.Current(s.ctx)
	s.Require().NoError(err)
	return u
}

func form(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (s *HandlersTestSuite) serve(fn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.h.RequireSession(fn).ServeHTTP(w, req)
	return w
}

func (s *HandlersTestSuite) TestRequireSessionRedirects() {
	w := s.serve(s.h.Dashboard, httptest.NewRequest("GET", "/dashboard", http.NoBody))
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *HandlersTestSuite) TestStaleSessionRedirects() {
	s.loggedIn()
	s.Require().NoError(s.records.SaveUsers(s.ctx, []models.User{}))

	w := s.serve(s.h.Dashboard, httptest.NewRequest("GET", "/dashboard", http.NoBody))
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))

	_, ok, err := s.records.Pointer(s.ctx)
	s.Require().NoError(err)
	s.False(ok, "stale pointer cleared")
}

func (s *HandlersTestSuite) TestLogin() {
	_, err := s.svc.Signup(s.ctx, tracker.SignupInput{Name: "Ann", Email: "ann@x.io", Phone: "555", Password: "pw"})
	s.Require().NoError(err)

	w := httptest.NewRecorder()
	s.h.Login(w, form("POST", "/login", url.Values{"email": {"ann@x.io"}, "password": {"nope"}}))
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Contains(w.Body.String(), "invalid email or password")

	w = httptest.NewRecorder()
	s.h.Login(w, form("POST", "/login", url.Values{"email": {" ANN@x.io"}, "password": {"pw"}}))
	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal("/dashboard", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	s.h.LoginForm(w, httptest.NewRequest("GET", "/login", http.NoBody))
	s.Equal(http.StatusFound, w.Code, "logged in users skip the form")
}

func (s *HandlersTestSuite) TestSignup() {
	values := url.Values{
		"name": {"Ann"}, "email": {"ann@x.io"}, "phone": {"555"},
		"password": {"pw"}, "confirm_password": {"other"},
	}
	w := httptest.NewRecorder()
	s.h.Signup(w, form("POST", "/signup", values))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Contains(w.Body.String(), "Passwords do not match")

	values.Set("confirm_password", "pw")
	w = httptest.NewRecorder()
	s.h.Signup(w, form("POST", "/signup", values))
	s.Equal(http.StatusSeeOther, w.Code)
	s.True(strings.HasPrefix(w.Header().Get("Location"), "/login"))

	w = httptest.NewRecorder()
	s.h.Signup(w, form("POST", "/signup", values))
	s.Equal(http.StatusConflict, w.Code)

	values.Set("email", "not-an-email")
	values.Set("name", "Other")
	w = httptest.NewRecorder()
	s.h.Signup(w, form("POST", "/signup", values))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Contains(w.Body.String(), "email is invalid")
}

func (s *HandlersTestSuite) TestLogout() {
	s.loggedIn()
	w := httptest.NewRecorder()
	s.h.Logout(w, httptest.NewRequest("POST", "/logout", http.NoBody))
	s.Equal(http.StatusSeeOther, w.Code)

	_, err := s.svc.Current(s.ctx)
	s.ErrorIs(err, models.ErrUnauthenticated)
}

func (s *HandlersTestSuite) TestDashboard() {
	s.loggedIn()
	_, err := s.svc.SetBudget(s.ctx, 20)
	s.Require().NoError(err)
	s.add("Lunch", 12.5, "Food", 5)
	s.add("Bus", 5, "Transport", 6)

	w := s.serve(s.h.Dashboard, httptest.NewRequest("GET", "/dashboard", http.NoBody))
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.Contains(body, "Lunch")
	s.Contains(body, "Bus")
	s.Contains(body, "17.50")
	s.Contains(body, "Approaching budget limit")
	s.Contains(body, `class="nav-name">Ann<`)

	w = s.serve(s.h.Dashboard, httptest.NewRequest("GET", "/dashboard?category=Transport", http.NoBody))
	s.NotContains(w.Body.String(), "Lunch")
	s.Contains(w.Body.String(), "Bus")
}

func (s *HandlersTestSuite) TestPartialRender() {
	s.loggedIn()
	req := httptest.NewRequest("GET", "/dashboard", http.NoBody)
	req.Header.Set("HX-Request", "true")

	w := s.serve(s.h.Dashboard, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "dashboard-screen")
	s.NotContains(w.Body.String(), "<nav")
}

func (s *HandlersTestSuite) TestCreateExpense() {
	s.loggedIn()

	w := s.serve(s.h.CreateExpense, form("POST", "/expenses", url.Values{
		"name": {"Lunch"}, "amount": {"12,5"}, "category": {"food"}, "date": {"2025-01-05"},
	}))
	s.Equal(http.StatusSeeOther, w.Code)

	u := s.current()
	s.Require().Len(u.Expenses, 1)
	s.Equal("Food", u.Expenses[0].Category)
	s.Equal(12.5, u.Expenses[0].Amount)
	s.Equal("2025-01-05", u.Expenses[0].DayKey())

	w = s.serve(s.h.CreateExpense, form("POST", "/expenses", url.Values{"name": {"Lunch"}, "amount": {"-1"}}))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Contains(w.Body.String(), "amount must be a positive number")
	s.Len(s.current().Expenses, 1)
}

func (s *HandlersTestSuite) TestUpdateExpense() {
	s.loggedIn()
	e := s.add("Lunch", 12, "Food", 5)

	req := form("POST", "/expenses/"+e.ID, url.Values{"amount": {"15"}})
	req.SetPathValue("id", e.ID)
	w := s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusSeeOther, w.Code)

	got := s.current().Expenses[0]
	s.Equal(15.0, got.Amount)
	s.Equal("Lunch", got.Name)
	s.Equal("2025-01-05", got.DayKey())

	req = form("POST", "/expenses/nope", url.Values{"amount": {"1"}})
	req.SetPathValue("id", "nope")
	w = s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestDeleteExpense() {
	s.loggedIn()
	lunch := s.add("Lunch", 12, "Food", 5)
	bus := s.add("Bus", 5, "Transport", 6)

	req := httptest.NewRequest("POST", "/expenses/"+bus.ID+"/delete", http.NoBody)
	req.SetPathValue("id", bus.ID)
	w := s.serve(s.h.DeleteExpense, req)
	s.Equal(http.StatusSeeOther, w.Code)

	u := s.current()
	s.Require().Len(u.Expenses, 1)
	s.Equal(lunch.ID, u.Expenses[0].ID)

	w = s.serve(s.h.DeleteExpense, req)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestSetBudget() {
	s.loggedIn()

	w := s.serve(s.h.SetBudget, form("POST", "/budget", url.Values{"budget": {"40,5"}}))
	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal(40.5, s.current().Budget)

	w = s.serve(s.h.SetBudget, form("POST", "/budget", url.Values{"budget": {"lots"}}))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	w = s.serve(s.h.SetBudget, form("POST", "/budget", url.Values{"budget": {"-3"}}))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(40.5, s.current().Budget)
}

func (s *HandlersTestSuite) TestUpdateProfile() {
	s.loggedIn()

	w := s.serve(s.h.UpdateProfile, form("POST", "/profile", url.Values{
		"name": {"Annie"}, "about": {"hi"}, "frequent_categories": {"Food, Bills"},
	}))
	s.Equal(http.StatusSeeOther, w.Code)

	u := s.current()
	s.Equal("Annie", u.Name)
	s.Equal("hi", u.About)
	s.Equal("555", u.Phone, "fields missing from the form are kept")

	w = s.serve(s.h.Profile, httptest.NewRequest("GET", "/profile", http.NoBody))
	s.Contains(w.Body.String(), `class="nav-name">Annie<`)

	w = s.serve(s.h.UpdateProfile, form("POST", "/profile", url.Values{"email": {"annie"}}))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("ann@x.io", s.current().Identity())

	w = s.serve(s.h.UpdateProfile, form("POST", "/profile", url.Values{"password": {"a"}, "confirm_password": {"b"}}))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Contains(w.Body.String(), "passwords do not match")
}

func pngUpload(s *HandlersTestSuite, w, h int) *http.Request {
	img := new(bytes.Buffer)
	s.Require().NoError(png.Encode(img, image.NewGray(image.Rect(0, 0, w, h))))

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("avatar", "me.png")
	s.Require().NoError(err)
	_, err = part.Write(img.Bytes())
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest("POST", "/profile/avatar", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *HandlersTestSuite) TestUploadAvatar() {
	s.loggedIn()

	w := s.serve(s.h.UploadAvatar, pngUpload(s, 300, 150))
	s.Equal(http.StatusSeeOther, w.Code)
	s.NotEmpty(s.current().ProfilePic)

	w = s.serve(s.h.Avatar, httptest.NewRequest("GET", "/profile/avatar", http.NoBody))
	s.Equal(http.StatusOK, w.Code)
	s.Equal("image/jpeg", w.Header().Get("Content-Type"))
	cfg, format, err := image.DecodeConfig(w.Body)
	s.Require().NoError(err)
	s.Equal("jpeg", format)
	s.Equal(200, cfg.Width)
	s.Equal(100, cfg.Height)
}

func (s *HandlersTestSuite) TestUploadAvatarRejectsHugeImage() {
	s.loggedIn()

	w := s.serve(s.h.UploadAvatar, pngUpload(s, avatar.MaxSourceSide+1, 1))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Empty(s.current().ProfilePic)
}

func (s *HandlersTestSuite) TestUploadAvatarAbandoned() {
	s.loggedIn()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	req := pngUpload(s, 64, 64).WithContext(ctx)

	w := s.serve(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-SurfaceFromContext(r).Context().Done()
		s.h.UploadAvatar(w, r)
	}, req)

	s.NotEqual(http.StatusSeeOther, w.Code)
	s.Empty(s.current().ProfilePic, "nothing written after the client went away")
}

func (s *HandlersTestSuite) TestAvatarMissing() {
	s.loggedIn()
	w := s.serve(s.h.Avatar, httptest.NewRequest("GET", "/profile/avatar", http.NoBody))
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersTestSuite) TestReportsDefaultToCurrentMonth() {
	s.loggedIn()
	s.add("Lunch", 12, "Food", 5)
	s.add("Bills", 30, "Bills", 6)
	_, err := s.svc.AddExpense(s.ctx, tracker.ExpenseInput{
		Name: "December", Amount: 99, Category: "Food",
		Date: time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	w := s.serve(s.h.Reports, httptest.NewRequest("GET", "/reports", http.NoBody))
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.Contains(body, "January 2025")
	s.Contains(body, "42.00")
	s.Contains(body, "71.4%")
	s.Contains(body, "month=2024-12")

	w = s.serve(s.h.Reports, httptest.NewRequest("GET", "/reports?month=2024-12", http.NoBody))
	s.Contains(w.Body.String(), "99.00")

	w = s.serve(s.h.Reports, httptest.NewRequest("GET", "/reports?month=soon", http.NoBody))
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *HandlersTestSuite) TestExportCSV() {
	s.loggedIn()
	s.add("Lunch", 12.5, "Food", 5)
	s.add("Bus", 5, "Transport", 6)

	w := s.serve(s.h.Export, httptest.NewRequest("GET", "/reports/export?format=csv&category=Food&from=2025-01-01&to=2025-01-31", http.NoBody))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Disposition"), "expenses.csv")

	rows, err := csv.NewReader(w.Body).ReadAll()
	s.Require().NoError(err)
	s.Equal([][]string{
		{"Date", "Name", "Category", "Amount"},
		{"2025-01-05", "Lunch", "Food", "12.50"},
	}, rows)

	w = s.serve(s.h.Export, httptest.NewRequest("GET", "/reports/export?format=pdf", http.NoBody))
	s.Equal(http.StatusOK, w.Code)
	s.Equal("application/pdf", w.Header().Get("Content-Type"))
	s.True(bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = s.serve(s.h.Export, httptest.NewRequest("GET", "/reports/export?format=docx", http.NoBody))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlersTestSuite) TestDeleteAccount() {
	s.loggedIn()

	w := s.serve(s.h.DeleteAccount, httptest.NewRequest("POST", "/account/delete", http.NoBody))
	s.Equal(http.StatusSeeOther, w.Code)

	w = s.serve(s.h.Dashboard, httptest.NewRequest("GET", "/dashboard", http.NoBody))
	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
