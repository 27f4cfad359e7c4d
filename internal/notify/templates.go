package notify

import (
	"regexp"

	"github.com/rs/zerolog"
)

// Template kinds beyond the notification type enum. These render as system
// notifications with a more specific body.
const (
	TemplateWelcome    = "welcome"
	TemplateSecurity   = "security"
	TemplateModeration = "moderation"
)

// Template is a title/message pair with {placeholder} variables.
type Template struct {
	Title   string
	Message string
}

var templateCatalogue = map[string]Template{
	"like":    {"New like", "{sender} liked your {content_type}"},
	"comment": {"New comment", "{sender} commented on your {content_type}: {content_preview}"},
	"follow":  {"New follower", "{sender} started following you"},
	"mention": {"You were mentioned", "{sender} mentioned you in a {content_type}"},
	"repost":  {"New repost", "{sender} reposted your {content_type}"},
	"message": {"New message", "{sender} sent you a message: {content_preview}"},
	"system":  {"System notice", "{message}"},

	TemplateWelcome:    {"Welcome aboard!", "Welcome to {site_name}! Start exploring and sharing."},
	TemplateSecurity:   {"Security alert", "Your account {event}. If this was not you, change your password immediately."},
	TemplateModeration: {"Content review", "Your {content_type} {action}: {reason}"},
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Renderer fills notification templates from a variable map.
type Renderer struct {
	logger zerolog.Logger
}

// NewRenderer creates a template renderer.
func NewRenderer(logger zerolog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render returns the title and message for the given template kind. Unknown
// kinds fall back to the generic system template. Placeholders missing from
// vars are left literal so the failure is visible instead of silent.
func (r *Renderer) Render(kind string, vars map[string]string) (string, string) {
	tpl, ok := templateCatalogue[kind]
	if !ok {
		r.logger.Warn().Str("kind", kind).Msg("unknown notification template kind")
		tpl = templateCatalogue["system"]
	}
	return r.fill(kind, tpl.Title, vars), r.fill(kind, tpl.Message, vars)
}

func (r *Renderer) fill(kind, text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		r.logger.Warn().Str("kind", kind).Str("placeholder", name).Msg("unresolved template placeholder")
		return match
	})
}
