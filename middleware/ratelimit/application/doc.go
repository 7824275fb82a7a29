// Package application contém os casos de uso do rate limit por conta e do
// limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Engine.Evaluate(key, now) retorna um domain.AdmissionResult
// (admitido/negado + valores de header).
package application
