package emails

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"helpdesk/internal/models"
)

// threadingHeaders are parsed into dedicated fields and not repeated in Headers
var threadingHeaders = map[string]bool{
	"Message-Id":  true,
	"In-Reply-To": true,
	"References":  true,
	"From":        true,
	"To":          true,
	"Subject":     true,
}

// MBOXProgress tracks the progress of MBOX file parsing
type MBOXProgress struct {
	BytesProcessed   int64
	TotalBytes       int64
	EmailsProcessed  int
	PercentComplete  float64
	CurrentBatchSize int
}

// MBOXBatchCallback is called for each batch of emails processed
type MBOXBatchCallback func(batch []*models.InboundEmail, progress MBOXProgress) error

// Parser reads mail archives into inbound payloads
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a parser
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger.With().Str("component", "email_parser").Logger()}
}

// ParseEMLFile parses a single EML file
func (p *Parser) ParseEMLFile(filename string) (*models.InboundEmail, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open EML file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			p.logger.Warn().Err(err).Str("file", filename).Msg("Error closing file")
		}
	}()

	return ParseEML(file)
}

// ParseDirectory recursively parses all EML files in a directory.
// Files that fail to parse are logged and skipped.
func (p *Parser) ParseDirectory(dirPath string) ([]*models.InboundEmail, error) {
	var parsed []*models.InboundEmail

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".eml") {
			return nil
		}

		email, err := p.ParseEMLFile(path)
		if err != nil {
			p.logger.Warn().Err(err).Str("file", path).Msg("Failed to parse EML file")
			return nil
		}
		parsed = append(parsed, email)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return parsed, nil
}

// ParseMBOXFileStreaming parses an MBOX file in batches with progress tracking,
// keeping only one batch in memory
func (p *Parser) ParseMBOXFileStreaming(filename string, batchSize int, callback MBOXBatchCallback) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open MBOX file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			p.logger.Warn().Err(err).Str("file", filename).Msg("Error closing file")
		}
	}()

	fileInfo, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	totalBytes := fileInfo.Size()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var (
		batch          []*models.InboundEmail
		current        bytes.Buffer
		emailCount     int
		bytesProcessed int64
	)

	flush := func(percent float64) error {
		if len(batch) == 0 {
			return nil
		}
		progress := MBOXProgress{
			BytesProcessed:   bytesProcessed,
			TotalBytes:       totalBytes,
			EmailsProcessed:  emailCount,
			PercentComplete:  percent,
			CurrentBatchSize: len(batch),
		}
		if err := callback(batch, progress); err != nil {
			return fmt.Errorf("batch processing error at email %d: %w", emailCount, err)
		}
		batch = nil
		return nil
	}

	parseCurrent := func() {
		emailCount++
		email, err := ParseEML(&current)
		if err != nil {
			p.logger.Warn().Err(err).Int("email", emailCount).Msg("Failed to parse MBOX message")
		} else {
			batch = append(batch, email)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		bytesProcessed += int64(len(line) + 1)

		// Each message starts with a "From " separator line
		if strings.HasPrefix(line, "From ") {
			if current.Len() > 0 {
				parseCurrent()
				if len(batch) >= batchSize {
					if err := flush(float64(bytesProcessed) / float64(totalBytes) * 100); err != nil {
						return err
					}
				}
			}
			continue
		}

		line = unquoteFromLine(line)
		current.WriteString(line)
		current.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading MBOX file: %w", err)
	}

	if current.Len() > 0 {
		parseCurrent()
	}
	if err := flush(100.0); err != nil {
		return err
	}

	p.logger.Info().
		Int("emails", emailCount).
		Str("file", filepath.Base(filename)).
		Int64("bytes", totalBytes).
		Msg("MBOX parsing complete")

	return nil
}

// unquoteFromLine undoes mboxrd quoting: a line matching ^>+From  loses one '>'
func unquoteFromLine(line string) string {
	trimmed := strings.TrimLeft(line, ">")
	if len(trimmed) < len(line) && strings.HasPrefix(trimmed, "From ") {
		return line[1:]
	}
	return line
}

// wordDecoder decodes RFC 2047 words in any charset go-message knows
var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// ParseEML parses one RFC 5322 message into an inbound payload. Transfer
// encodings and text charsets are decoded; parts in an unknown charset are
// kept as they are.
func ParseEML(r io.Reader) (*models.InboundEmail, error) {
	entity, err := message.Read(r)
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("failed to read email message: %w", err)
	}
	header := mail.Header{Header: entity.Header}

	email := &models.InboundEmail{
		Subject:    decodeHeader(header.Get("Subject")),
		MessageID:  strings.TrimSpace(header.Get("Message-Id")),
		InReplyTo:  strings.TrimSpace(header.Get("In-Reply-To")),
		References: strings.Fields(header.Get("References")),
		Headers:    collectHeaders(entity.Header),
	}

	if email.From, err = firstAddress(header, "From"); err != nil {
		return nil, fmt.Errorf("failed to parse From header: %w", err)
	}
	if email.To, err = firstAddress(header, "To"); err != nil {
		return nil, fmt.Errorf("failed to parse To header: %w", err)
	}

	content := &messageContent{}
	if err := content.walk(entity); err != nil {
		return nil, fmt.Errorf("failed to extract body: %w", err)
	}
	email.Text = strings.Join(content.text, "\n\n")
	email.HTML = strings.Join(content.html, "\n\n")
	email.Attachments = content.attachments

	return email, nil
}

// isRecoverable reports errors after which go-message still hands back a
// usable entity with the body left undecoded
func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

type messageContent struct {
	text        []string
	html        []string
	attachments []models.Attachment
}

func (c *messageContent) walk(entity *message.Entity) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil && !isRecoverable(err) {
				return err
			}
			if err := c.walk(part); err != nil {
				return err
			}
		}
	}

	mediaType, params, _ := entity.Header.ContentType()
	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return err
	}

	if filename := partFilename(entity.Header, params); filename != "" {
		c.attachments = append(c.attachments, models.Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Content:     base64.StdEncoding.EncodeToString(data),
		})
		return nil
	}

	switch {
	case mediaType == "text/html":
		c.html = append(c.html, string(data))
	case mediaType == "" || mediaType == "text/plain":
		c.text = append(c.text, string(data))
	}
	return nil
}

func partFilename(header message.Header, typeParams map[string]string) string {
	disposition, dispParams, _ := header.ContentDisposition()
	name := dispParams["filename"]
	if name == "" {
		name = typeParams["name"]
	}
	if name == "" && disposition == "attachment" {
		name = "attachment"
	}
	return decodeHeader(name)
}

func firstAddress(header mail.Header, key string) (models.Address, error) {
	if strings.TrimSpace(header.Get(key)) == "" {
		return models.Address{}, nil
	}
	list, err := header.AddressList(key)
	if err != nil {
		return models.Address{}, err
	}
	if len(list) == 0 {
		return models.Address{}, nil
	}
	return models.Address{Email: list[0].Address, Name: list[0].Name}, nil
}

// collectHeaders keeps the remaining headers in a stable order
func collectHeaders(header message.Header) []models.Header {
	values := make(map[string][]string)
	fields := header.Fields()
	for fields.Next() {
		name := fields.Key()
		if threadingHeaders[name] {
			continue
		}
		values[name] = append(values[name], fields.Value())
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var headers []models.Header
	for _, name := range names {
		for _, value := range values[name] {
			headers = append(headers, models.Header{Name: name, Value: decodeHeader(value)})
		}
	}
	return headers
}

// cleanHTML reduces an HTML body to readable text
func cleanHTML(html string) string {
	html = removeTagsWithContent(html, "script")
	html = removeTagsWithContent(html, "style")

	replacer := strings.NewReplacer(
		"<br>", "\n",
		"<br/>", "\n",
		"<br />", "\n",
		"</p>", "\n\n",
		"</div>", "\n",
		"</li>", "\n",
	)
	html = replacer.Replace(html)

	var result strings.Builder
	inTag := false
	for _, char := range html {
		if char == '<' {
			inTag = true
			continue
		}
		if char == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(char)
		}
	}

	// Entities last so that decoded "<" is not mistaken for a tag
	text := strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&amp;", "&",
	).Replace(result.String())

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

// removeTagsWithContent removes HTML tags and their content
func removeTagsWithContent(html, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"

	for {
		lower := strings.ToLower(html)
		start := strings.Index(lower, openTag)
		if start == -1 {
			return html
		}
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			return html[:start]
		}
		end += start + len(closeTag)
		html = html[:start] + html[end:]
	}
}

// decodeHeader decodes MIME encoded headers
func decodeHeader(header string) string {
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
