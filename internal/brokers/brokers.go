// Package brokers parses Kafka bootstrap lists the same way for every client.
package brokers

import "strings"

// Parse turns "a:9092, b:9092" into a broker list, dropping blanks.
func Parse(bootstrap string) []string {
	var out []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Join renders the list in the comma form librdkafka expects.
func Join(bootstrap string) string { return strings.Join(Parse(bootstrap), ",") }
