package chat

import "strings"

// Locale holds every user-visible string the client produces.
type Locale struct {
	// Starting is the status of a freshly sent placeholder message.
	Starting string
	// ExchangeFailed replaces the reply when the backend reports an error.
	ExchangeFailed string
	// ConnectionFailed is shown when the request never completed.
	ConnectionFailed string
}

var (
	// Spanish is the default locale of the assistant.
	Spanish = Locale{
		Starting:         "Starting...",
		ExchangeFailed:   "Hubo un problema al procesar tu solicitud. Por favor, intenta de nuevo.",
		ConnectionFailed: "Lo siento, hubo un error de conexión. Por favor, intenta de nuevo.",
	}

	English = Locale{
		Starting:         "Starting...",
		ExchangeFailed:   "There was a problem processing your request. Please try again.",
		ConnectionFailed: "Sorry, there was a connection error. Please try again.",
	}
)

// LocaleFor returns the locale for a language tag, falling back to Spanish.
func LocaleFor(tag string) Locale {
	switch strings.ToLower(strings.SplitN(tag, "-", 2)[0]) {
	case "en":
		return English
	default:
		return Spanish
	}
}
