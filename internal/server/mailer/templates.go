package mailer

import "html/template"

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(to right, #4CAF50, #45a049); padding: 20px; text-align: center;">
    <h1 style="color: white; margin: 0;">{{template "title" .}}</h1>
  </div>
  <div style="background-color: #f9f9f9; padding: 20px; border-radius: 0 0 5px 5px;">
    {{template "content" .}}
    <p>Best regards,<br>CryptoVote Team</p>
  </div>
  <p style="text-align: center; color: #888; font-size: 0.8em;">This is an automated message, please do not reply to this email.</p>
</body>
</html>`

func mustPage(title, content string) *template.Template {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.New("title").Parse(title))
	template.Must(t.New("content").Parse(content))
	return t
}

var (
	verificationTmpl = mustPage("Verify Your Email", `
    <p>Hello,</p>
    <p>Thank you for signing up! Your verification code is:</p>
    <p style="text-align: center; font-size: 32px; font-weight: bold; letter-spacing: 5px; color: #4CAF50;">{{.Code}}</p>
    <p>Enter this code on the verification page to complete your registration.</p>
    <p>This code will expire in 24 hours for security reasons.</p>
    <p>If you didn't create an account with us, please ignore this email.</p>`)

	welcomeTmpl = mustPage("Welcome to CryptoVote", `
    <p>Hello {{.Matric}},</p>
    <p>Your email has been verified. You can now set a password or register a passkey and take part in the polls.</p>`)

	resetRequestTmpl = mustPage("Password Reset", `
    <p>Hello,</p>
    <p>We received a request to reset your password. If you didn't make this request, please ignore this email.</p>
    <p>To reset your password, click the button below:</p>
    <p style="text-align: center;"><a href="{{.URL}}" style="background-color: #4CAF50; color: white; padding: 12px 20px; text-decoration: none; border-radius: 5px; font-weight: bold;">Reset Password</a></p>
    <p>This link will expire in 1 hour for security reasons.</p>`)

	resetSuccessTmpl = mustPage("Password Reset Successful", `
    <p>Hello,</p>
    <p>We're writing to confirm that your password has been successfully reset.</p>
    <p>If you did not initiate this password reset, please contact our support team immediately.</p>`)

	voteConfirmedTmpl = mustPage("Vote Confirmed", `
    <p>Hello,</p>
    <p>Your vote has been submitted to the blockchain. Thank you for taking part.</p>`)
)
