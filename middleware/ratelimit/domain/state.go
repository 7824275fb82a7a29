package domain

import "time"

// History é a sequência de timestamps admitidos de uma chave, do mais antigo
// para o mais recente (ordem não-decrescente).
type History interface {
	// Prune remove as entradas anteriores a cutoff e retorna quantas removeu.
	Prune(cutoff time.Time) int
	// CountAfter conta as entradas estritamente posteriores a t.
	CountAfter(t time.Time) int
	Append(t time.Time)
	Len() int
}

// KeyState é todo o estado mutável de uma chave.
//
// Timeouts tem uma posição por tier; o zero value significa "sem penalidade".
type KeyState struct {
	History  History
	Timeouts []time.Time
	LastSeen time.Time
}

// Penalized informa se algum tier ainda penaliza a chave em now, isto é, se
// a expiração é estritamente posterior a now (em now == expiração o engine
// já admite com retry 0).
func (s *KeyState) Penalized(now time.Time) bool {
	for _, exp := range s.Timeouts {
		if !exp.IsZero() && exp.After(now) {
			return true
		}
	}
	return false
}

// StateStore guarda o KeyState de cada chave.
//
// Do executa fn com acesso exclusivo ao estado da chave (criado sob demanda).
// Avaliações da mesma chave são serializadas; chaves distintas não devem
// disputar um lock global.
type StateStore interface {
	Do(key Key, now time.Time, fn func(*KeyState))
}
