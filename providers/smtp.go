package providers

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailbridge/models"
)

// buildMIME assembles the outgoing message as a multipart/mixed document and
// returns the raw bytes plus the generated Message-ID.
func buildMIME(msg *OutgoingMessage) ([]byte, string, error) {
	if len(msg.To) == 0 {
		return nil, "", fmt.Errorf("no recipients")
	}

	domain := "localhost"
	if at := strings.LastIndex(msg.FromAddress, "@"); at >= 0 {
		domain = msg.FromAddress[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

	var buf bytes.Buffer
	boundary := uuid.New().String()

	from := msg.FromAddress
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", msg.FromName), msg.FromAddress)
	}

	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	if len(msg.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.Cc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	buf.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	if msg.InReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", msg.InReplyTo))
	}
	if len(msg.References) > 0 {
		buf.WriteString(fmt.Sprintf("References: %s\r\n", strings.Join(msg.References, " ")))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		writeBodyPart(&buf, msg, "")
		return buf.Bytes(), messageID, nil
	}

	buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary))

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	writeBodyPart(&buf, msg, boundary)

	for _, att := range msg.Attachments {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		buf.WriteString(fmt.Sprintf("Content-Type: %s\r\n", contentType))
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename))

		encoded := base64.StdEncoding.EncodeToString(att.Content)
		// Wrap base64 at 76 characters per RFC 2045.
		for len(encoded) > 76 {
			buf.WriteString(encoded[:76] + "\r\n")
			encoded = encoded[76:]
		}
		buf.WriteString(encoded + "\r\n")
	}

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return buf.Bytes(), messageID, nil
}

func writeBodyPart(buf *bytes.Buffer, msg *OutgoingMessage, boundary string) {
	if msg.HTMLBody != "" {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.HTMLBody)
	} else {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.TextBody)
	}
	buf.WriteString("\r\n")
}

// sendSMTP delivers the raw message. Port 465 uses implicit TLS, everything
// else negotiates STARTTLS. Dial failures and timeouts come back as
// ConnectionError; a rejected recipient is a validation problem.
func sendSMTP(settings *models.IMAPSettings, msg *OutgoingMessage, raw []byte, timeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", settings.SMTPServer, settings.SMTPPort)

	var smtpClient *smtp.Client
	if settings.SMTPPort == 465 {
		dialer := &net.Dialer{Timeout: timeout}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: settings.SMTPServer})
		if err != nil {
			return connErr("dial smtp "+addr, err)
		}
		smtpClient, err = smtp.NewClient(conn, settings.SMTPServer)
		if err != nil {
			conn.Close()
			return connErr("smtp handshake", err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return connErr("dial smtp "+addr, err)
		}
		conn.SetDeadline(time.Now().Add(timeout))
		smtpClient, err = smtp.NewClient(conn, settings.SMTPServer)
		if err != nil {
			conn.Close()
			return connErr("smtp handshake", err)
		}
		if err := smtpClient.StartTLS(&tls.Config{ServerName: settings.SMTPServer}); err != nil {
			smtpClient.Close()
			return connErr("starttls", err)
		}
	}
	defer smtpClient.Close()

	if settings.Password != "" {
		auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.SMTPServer)
		if err := smtpClient.Auth(auth); err != nil {
			return loginErr(settings.Username, err)
		}
	}

	if err := smtpClient.Mail(msg.FromAddress); err != nil {
		return connErr("smtp mail from", err)
	}

	recipients := append(append(append([]string{}, msg.To...), msg.Cc...), msg.Bcc...)
	for _, rcpt := range recipients {
		if err := smtpClient.Rcpt(rcpt); err != nil {
			return &ValidationError{Message: fmt.Sprintf("recipient %s rejected: %v", rcpt, err)}
		}
	}

	w, err := smtpClient.Data()
	if err != nil {
		return connErr("smtp data", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return connErr("smtp write", err)
	}
	if err := w.Close(); err != nil {
		return connErr("smtp close", err)
	}

	// The server accepted the message at DATA close; a failed QUIT must not
	// report the send as failed.
	_ = smtpClient.Quit()
	return nil
}
