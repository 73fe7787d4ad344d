package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"spendbook/internal/avatar"
	"spendbook/internal/tracker"
)

// ProfileViewModel is the data passed to the profile template.
type ProfileViewModel struct {
	Page
}

// Profile renders the profile page.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	h.profile(w, r, http.StatusOK, "")
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request, status int, message string) {
	vm := ProfileViewModel{Page: h.page(r, "Profile")}
	vm.Error = message
	h.render(w, r, status, "profile.html", vm)
}

// profileFields maps form fields onto ProfileUpdate. Fields missing from the
// form are left alone.
var profileFields = map[string]func(*tracker.ProfileUpdate, *string){
	"name":                func(u *tracker.ProfileUpdate, v *string) { u.Name = v },
	"email":               func(u *tracker.ProfileUpdate, v *string) { u.Email = v },
	"first_name":          func(u *tracker.ProfileUpdate, v *string) { u.FirstName = v },
	"last_name":           func(u *tracker.ProfileUpdate, v *string) { u.LastName = v },
	"phone":               func(u *tracker.ProfileUpdate, v *string) { u.Phone = v },
	"address":             func(u *tracker.ProfileUpdate, v *string) { u.Address = v },
	"about":               func(u *tracker.ProfileUpdate, v *string) { u.About = v },
	"frequent_categories": func(u *tracker.ProfileUpdate, v *string) { u.FrequentCategories = v },
}

// UpdateProfile saves the profile form.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.profile(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}

	var upd tracker.ProfileUpdate
	for field, set := range profileFields {
		if _, ok := r.PostForm[field]; ok {
			v := r.PostFormValue(field)
			set(&upd, &v)
		}
	}
	if raw := strings.TrimSpace(r.PostFormValue("budget")); raw != "" {
		b, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			h.profile(w, r, http.StatusUnprocessableEntity, "Please enter a valid budget")
			return
		}
		upd.Budget = &b
	}
	upd.Password = r.PostFormValue("password")
	upd.ConfirmPassword = r.PostFormValue("confirm_password")

	if _, err := h.svc.UpdateProfile(r.Context(), upd); err != nil {
		if !h.fail(w, r, "update profile", err) {
			h.profile(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/profile?notice=Profile+saved", http.StatusSeeOther)
}

// UploadAvatar stores the uploaded picture. The upload runs under the
// request's surface, so nothing is written once the client has gone away.
func (h *Handlers) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	surface := SurfaceFromContext(r)
	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxUploadBytes+1<<20)

	file, _, err := r.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.profile(w, r, http.StatusRequestEntityTooLarge, avatar.ErrTooLarge.Error())
			return
		}
		h.profile(w, r, http.StatusBadRequest, "Please choose a picture to upload")
		return
	}
	defer file.Close()

	if _, err := h.svc.SetAvatar(surface.Context(), file); err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.InfoContext(r.Context(), "avatar upload abandoned")
			return
		}
		if !h.fail(w, r, "set avatar", err) {
			h.profile(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/profile?notice=Picture+updated", http.StatusSeeOther)
}

// Avatar serves the stored picture as a JPEG.
func (h *Handlers) Avatar(w http.ResponseWriter, r *http.Request) {
	user := SurfaceFromContext(r).User()
	if user == nil || user.ProfilePic == "" {
		http.NotFound(w, r)
		return
	}
	data, err := avatar.JPEG(user.ProfilePic)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stored avatar unreadable", "identity", user.Identity(), "error", err)
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// DeleteAccount removes the logged-in account.
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAccount(r.Context()); err != nil {
		if !h.fail(w, r, "delete account", err) {
			h.profile(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/signup?notice=Account+deleted", http.StatusSeeOther)
}
