//go:build integration

package integration

import (
	"fmt"
	"net/http"
)

const (
	bonusCardNumber = 5000
	bonusCardYear   = 2030
	bonusCardMonth  = 12
)

var customerXML = map[int]string{
	1: fmt.Sprintf(`<customer>
	<customerNo>1</customerNo><firstName>Ann</firstName><lastName>Smith</lastName>
	<sex>FEMALE</sex><birthDate>1990-01-01</birthDate>
	<address><country>Finland</country><streetAddress>Main 1</streetAddress><postOffice>Vaasa</postOffice><postalCode>65100</postalCode></address>
	<bonusCard><number>%d</number><goodThruYear>%d</goodThruYear><goodThruMonth>%d</goodThruMonth><holderName>Ann Smith</holderName><blocked>false</blocked><expired>false</expired></bonusCard>
</customer>`, bonusCardNumber, bonusCardYear, bonusCardMonth),
	2: `<customer>
	<customerNo>2</customerNo><firstName>Bob</firstName><lastName>Jones</lastName>
	<sex>MALE</sex><birthDate>1985-06-15</birthDate>
	<address><country>Finland</country><streetAddress>Side 2</streetAddress><postOffice>Oulu</postOffice><postalCode>90100</postalCode></address>
</customer>`,
}

// customerRegistry serves the customer registry's XML endpoints for the
// customers above.
func customerRegistry() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, no int) {
		body, ok := customerXML[no]
		if !ok {
			http.NotFound(w, nil)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("GET /rest", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /rest/findByCustomerNo/{no}", func(w http.ResponseWriter, r *http.Request) {
		var no int
		if _, err := fmt.Sscan(r.PathValue("no"), &no); err != nil {
			http.NotFound(w, r)
			return
		}
		write(w, no)
	})
	mux.HandleFunc("GET /rest/findByBonusCard/{number}/{year}/{month}", func(w http.ResponseWriter, r *http.Request) {
		want := fmt.Sprintf("%d/%d/%d", bonusCardNumber, bonusCardYear, bonusCardMonth)
		got := r.PathValue("number") + "/" + r.PathValue("year") + "/" + r.PathValue("month")
		if got != want {
			http.NotFound(w, r)
			return
		}
		write(w, 1)
	})
	return mux
}
