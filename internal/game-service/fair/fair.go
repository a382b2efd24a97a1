package fair

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
)

// Limites do crash point. O round sempre termina dentro dessa faixa.
const (
	MinCrash = 1.01
	MaxCrash = 120.00
)

// NewSeed gera um seed secreto de 32 bytes (hex) via CSPRNG.
// O seed só é revelado depois do crash; antes disso os clientes
// conhecem apenas o hash de compromisso.
func NewSeed() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Hash calcula o compromisso publicado na abertura do round:
// SHA-256(seed || roundNumber decimal), em hex.
func Hash(seed string, roundNumber int64) string {
	sum := sha256.Sum256([]byte(seed + strconv.FormatInt(roundNumber, 10)))
	return hex.EncodeToString(sum[:])
}

// Generate deriva (hash, crashPoint) de um seed e número de round.
// Função pura: mesmo par de entrada produz sempre o mesmo resultado.
//
// Os 4 primeiros bytes do hash viram um uint32 h; u = h/0xFFFFFFFF dá
// um número em [0,1]; o crash point usa um sorteio exponencial com
// offset fixo de 1.01, limitado a [1.01, 120.00] e arredondado a 2 casas.
func Generate(seed string, roundNumber int64) (hash string, crashPoint float64) {
	hash = Hash(seed, roundNumber)

	raw, _ := hex.DecodeString(hash[:8])
	h := binary.BigEndian.Uint32(raw)
	u := float64(h) / float64(math.MaxUint32)

	cp := MinCrash + -math.Log(1-u*0.99)*2
	cp = math.Max(MinCrash, math.Min(MaxCrash, cp))

	return hash, math.Round(cp*100) / 100
}

// Verify recalcula o crash point a partir do seed revelado e compara
// com o valor publicado, tolerando diferença < 0.01.
func Verify(seed string, roundNumber int64, claimedCrashPoint float64) bool {
	_, cp := Generate(seed, roundNumber)
	return math.Abs(cp-claimedCrashPoint) < 0.01
}
