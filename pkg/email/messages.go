package email

import "fmt"

// VerificationCode builds the one-time-code message sent during OTP sign-up
// and sign-in.
func VerificationCode(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your verification code",
		Tag:     "otp_verification",
		BodyHTML: fmt.Sprintf(
			`<p>Your verification code is:</p><h2 style="letter-spacing:4px">%s</h2><p>The code expires in 10 minutes. If you did not request it, you can ignore this email.</p>`,
			code,
		),
	}
}

// PasswordResetNotice builds the message sent when a password reset is
// requested for an account.
func PasswordResetNotice(to, resetURL string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Tag:     "password_reset",
		BodyHTML: fmt.Sprintf(
			`<p>A password reset was requested for your account.</p><p><a href="%s">Reset password</a></p><p>If you did not request it, you can ignore this email.</p>`,
			resetURL,
		),
	}
}
