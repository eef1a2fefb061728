package i18n

import (
	stderrors "errors"
	"testing"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if cat.Format("code", nil) != "hello <no value>" {
		t.Fatal("expected template to render missing metadata")
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestFormatTemplateExecutionErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ call .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ call .Name }}" {
		t.Fatal("expected template fallback on execute error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}

func TestUserMessageLocalizesDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		locale     string
		want       string
		wantLocale string
	}{
		{
			name:       "no previous roll en-US",
			err:        apperrors.New(apperrors.CodeNoPreviousRoll, "no roll"),
			locale:     "en-US",
			want:       "No previous roll found for your user.",
			wantLocale: "en-US",
		},
		{
			name:       "actor not found en-US",
			err:        apperrors.New(apperrors.CodeActorNotFound, "no actor"),
			locale:     "",
			want:       "Whirling Throw: No actor selected and no assigned character found.",
			wantLocale: "en-US",
		},
		{
			name:       "metadata templating pt-BR",
			err:        apperrors.WithMetadata(apperrors.CodeCharacterNotFound, "missing", map[string]string{"CharacterID": "c9"}),
			locale:     "pt-BR",
			want:       "Personagem c9 não encontrado.",
			wantLocale: "pt-BR",
		},
		{
			name:       "unknown locale falls back",
			err:        apperrors.New(apperrors.CodeNoPreviousRoll, "no roll"),
			locale:     "xx-YY",
			want:       "No previous roll found for your user.",
			wantLocale: "en-US",
		},
		{
			name:       "plain error renders unknown",
			err:        stderrors.New("boom"),
			locale:     "en-US",
			want:       "An unexpected error occurred.",
			wantLocale: "en-US",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, locale := UserMessage(tc.err, tc.locale)
			if got != tc.want {
				t.Fatalf("message = %q, want %q", got, tc.want)
			}
			if locale != tc.wantLocale {
				t.Fatalf("locale = %q, want %q", locale, tc.wantLocale)
			}
		})
	}
}

func TestToGRPCStatusUsesLocalizedMessage(t *testing.T) {
	st := status.Convert(ToGRPCStatus(apperrors.New(apperrors.CodeNoPreviousRoll, "no roll for u1"), "pt-BR"))
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("code = %v", st.Code())
	}
	found := false
	for _, detail := range st.Details() {
		if lm, ok := detail.(*errdetails.LocalizedMessage); ok {
			found = true
			if lm.GetLocale() != "pt-BR" || lm.GetMessage() != "Nenhuma rolagem anterior encontrada para o seu usuário." {
				t.Fatalf("localized = %v", lm)
			}
		}
	}
	if !found {
		t.Fatal("expected localized message detail")
	}

	plain := status.Convert(ToGRPCStatus(stderrors.New("boom"), "en-US"))
	if plain.Code() != codes.Internal {
		t.Fatalf("plain code = %v", plain.Code())
	}
}
