package email

// Config holds the default sender identity and Postmark credentials.
// PostmarkServerToken may stay empty in development, where DevSender is used.
// Tenants with their own mailer DSN reuse SenderEmail and SupportEmail unless
// the DSN overrides them.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevOutputDir         string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}
