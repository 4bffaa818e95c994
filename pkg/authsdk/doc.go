// Package authsdk is the Go client for the idverify authentication service.
//
// It covers the full credential lifecycle: registration, password login with
// the optional MFA leg, token refresh, and the authenticated account and MFA
// management endpoints.
//
// Unauthenticated calls go through SDKClient. A successful login yields a
// Session, which attaches the access token to requests and transparently
// refreshes it shortly before expiry.
//
//	client := authsdk.NewSDKClient("https://auth.example.com")
//	sess, err := client.Login(ctx, "alice@example.com", "password")
//	var mfaErr *authsdk.MFARequiredError
//	if errors.As(err, &mfaErr) {
//		sess, err = client.CompleteMFA(ctx, mfaErr.MFAToken, code)
//	}
//	info, err := sess.UserInfo(ctx)
//
// Server handlers share this package's request and response types, so the
// wire shapes live in exactly one place.
package authsdk
