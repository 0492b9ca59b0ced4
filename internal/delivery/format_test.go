package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitPartsKeepsListsTogether(t *testing.T) {
	got := SplitParts("Olá!\n\nEscolha uma opção:\n\n- Corte\n- Barba\n\n1. Segunda\n2. Terça\n\nAté logo")
	assert.Equal(t, []string{
		"Olá!",
		"Escolha uma opção:\n- Corte\n- Barba\n1. Segunda\n2. Terça",
		"Até logo",
	}, got)
}

func TestSplitPartsNormalizesBold(t *testing.T) {
	assert.Equal(t, []string{"*Atenção* ao horário", "Fim"}, SplitParts("**Atenção** ao horário\n\n\n\nFim"))
}

func TestPartDelayBands(t *testing.T) {
	none := func(time.Duration) time.Duration { return 0 }
	most := func(n time.Duration) time.Duration { return n - 1 }
	short := "ok"
	medium := string(make([]byte, 100))
	long := string(make([]byte, 200))
	huge := string(make([]byte, 400))

	assert.Equal(t, 5*time.Second, PartDelay(short, most))
	assert.Equal(t, 5*time.Second, PartDelay(medium, none))
	assert.Equal(t, 10*time.Second-1, PartDelay(medium, most))
	assert.Equal(t, 10*time.Second, PartDelay(long, none))
	assert.Equal(t, 15*time.Second, PartDelay(huge, none))
	assert.Equal(t, 30*time.Second-1, PartDelay(huge, most))

	d := PartDelay(huge, nil)
	assert.GreaterOrEqual(t, d, 15*time.Second)
	assert.Less(t, d, 30*time.Second)
}

func TestParseImageDirective(t *testing.T) {
	img, ok := ParseImageDirective(`IMAGE: "https://cdn.example.com/menu.png" Nosso cardápio de hoje`)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/menu.png", img.URL)
	assert.Equal(t, "Nosso cardápio de hoje", img.Caption)

	_, ok = ParseImageDirective("Veja a imagem: https://cdn.example.com/menu.png")
	assert.False(t, ok)
	_, ok = ParseImageDirective("image:   ")
	assert.False(t, ok)
}

func TestDirectivePrefixes(t *testing.T) {
	assert.Equal(t, "Oi", StripText("*texto:* Oi"))
	assert.Equal(t, "Oi", StripText("Texto: Oi"))
	assert.True(t, HasAudioPrefix("**audio:** Oi"))
	assert.False(t, HasAudioPrefix("Oi audio: tchau"))
	assert.Equal(t, []string{"Primeiro", "Segundo"}, AudioSegments("audio: Primeiro audio: Segundo"))
	assert.Equal(t, []string{"Sem marcador"}, AudioSegments("Sem marcador"))
}

func TestSanitizeSpeech(t *testing.T) {
	assert.Equal(t, "Olá, João! Preço: 10.", SanitizeSpeech("*Olá*, João! 😀 Preço: 10."))
	assert.Equal(t, "Ação confirmada", SanitizeSpeech("**Ação** confirmada ✅"))
}
