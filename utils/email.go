package utils

import (
	"Go_Uploader/config"
	"crypto/tls"
	"errors"
	"html"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// UploadReport is the content of a finished-upload mail.
type UploadReport struct {
	Name     string
	Status   string
	Label    string
	Progress float64
}

// SendUploadReport mails the final status of an upload.
func SendUploadReport(to string, report UploadReport) error {
	cfg := config.AppConfig
	if !cfg.SMTPConfigured() {
		return errors.New("smtp config missing")
	}
	if to == "" {
		return errors.New("report recipient missing")
	}

	e := email.NewEmail()
	e.From = cfg.SMTPFrom
	e.To = []string{to}
	e.Subject = "Upload " + report.Status + ": " + report.Name
	e.HTML = []byte(`
		<h2>` + html.EscapeString(report.Name) + `</h2>
		<p>` + html.EscapeString(report.Label) + `</p>
		<p>Progress: ` + FormatPercent(report.Progress) + `</p>
	`)

	addr := cfg.SMTPHost + ":" + cfg.SMTPPort
	auth := smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost}
	useTLS := cfg.SMTPTLS || cfg.SMTPPort == "465"

	if useTLS {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if cfg.SMTPStartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
