package common

// Cookie names shared with the browser client.
const (
	SessionCookieName   = "token"
	ChallengeCookieName = "challengeCookie"
)

// Passkey ceremony kinds carried by the challenge cookie.
const (
	CeremonyRegistration = "registration"
	CeremonyLogin        = "login"
)
