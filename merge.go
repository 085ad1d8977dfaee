package authrepo

// Populate-missing merges.  A target field is only written when it is
// currently empty; explicit values on the target always win.

func setIfEmpty(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

// PopulateProviderFromTokens copies token and profile fields onto a link.
// Items are merged key by key under the same rule.
func PopulateProviderFromTokens(link *UserOAuthProvider, tokens *OAuthTokens) {
	if link == nil || tokens == nil {
		return
	}
	setIfEmpty(&link.Provider, tokens.Provider)
	setIfEmpty(&link.UserID, tokens.UserID)
	setIfEmpty(&link.UserName, tokens.UserName)
	setIfEmpty(&link.DisplayName, tokens.DisplayName)
	setIfEmpty(&link.FirstName, tokens.FirstName)
	setIfEmpty(&link.LastName, tokens.LastName)
	setIfEmpty(&link.Email, tokens.Email)
	setIfEmpty(&link.RequestToken, tokens.RequestToken)
	setIfEmpty(&link.RequestTokenSecret, tokens.RequestTokenSecret)
	setIfEmpty(&link.AccessToken, tokens.AccessToken)
	setIfEmpty(&link.AccessTokenSecret, tokens.AccessTokenSecret)
	if len(tokens.Items) > 0 {
		if link.Items == nil {
			link.Items = make(map[string]string, len(tokens.Items))
		}
		for k, v := range tokens.Items {
			if _, ok := link.Items[k]; !ok {
				link.Items[k] = v
			}
		}
	}
}

// PopulateUserAuthFromProvider copies profile fields from a link onto an
// account.  UserName and Email are left alone: they are unique keys and a
// provider's values may already belong to another account.  The provider
// email lands in PrimaryEmail instead.
func PopulateUserAuthFromProvider(user *UserAuth, link *UserOAuthProvider) {
	if user == nil || link == nil {
		return
	}
	setIfEmpty(&user.DisplayName, link.DisplayName)
	setIfEmpty(&user.FirstName, link.FirstName)
	setIfEmpty(&user.LastName, link.LastName)
	setIfEmpty(&user.PrimaryEmail, link.Email)
}

// PopulateUserAuthFromSession copies session profile onto an account.
func PopulateUserAuthFromSession(user *UserAuth, session *AuthSession) {
	if user == nil || session == nil {
		return
	}
	setIfEmpty(&user.UserName, session.UserName)
	setIfEmpty(&user.Email, session.Email)
	setIfEmpty(&user.PrimaryEmail, session.PrimaryEmail)
	setIfEmpty(&user.DisplayName, session.DisplayName)
	setIfEmpty(&user.FirstName, session.FirstName)
	setIfEmpty(&user.LastName, session.LastName)
	if len(user.Roles) == 0 {
		user.Roles = cloneStrings(session.Roles)
	}
	if len(user.Permissions) == 0 {
		user.Permissions = cloneStrings(session.Permissions)
	}
}
