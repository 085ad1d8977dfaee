package authrepo

import (
	"net/http"
)

// Optional profile fields read by HandleRegister
const (
	registerDisplayNameField = "display_name"
	registerFirstNameField   = "first_name"
	registerLastNameField    = "last_name"
)

// HandleRegister creates an account and logs it in.
//
// Validation failures answer 400 and username or email collisions 409, with
// a JSON body naming the code and field:
//
//	{"error": "user already exists: john", "code": "DUPLICATE_USER", "field": "UserName"}
func (a *AuthHandlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	form, err := parseForm(r, a.UsernameField, a.EmailField, a.PasswordField,
		registerDisplayNameField, registerFirstNameField, registerLastNameField)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, err.Error(), "")
		return
	}

	newUser := &UserAuth{
		UserName:    form[a.UsernameField],
		Email:       form[a.EmailField],
		DisplayName: form[registerDisplayNameField],
		FirstName:   form[registerFirstNameField],
		LastName:    form[registerLastNameField],
	}
	newUser.PrimaryEmail = newUser.Email

	user, err := a.Repo.CreateUserAuth(newUser, form[a.PasswordField])
	if err != nil {
		writeAuthError(w, err)
		return
	}
	session, err := a.logIn(user, r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}
