/*
Package markov builds phrase-level Markov chains from English prose and walks
them to produce locally plausible text.

A Builder slides a window of N tokens over a token stream and records, for each
N-token phrase, every phrase observed to follow it together with how often.
While building it also notices whether the corpus uses capitals and whether it
uses sentence-ending periods; a Walker uses those style flags to pick sensible
starting phrases, to recover from dead ends, and to finish the last sentence
before stopping.

Built chains can be exported as JSON or cached in a SQLite database through a
Store, so large corpora only have to be parsed once.
*/
package markov
