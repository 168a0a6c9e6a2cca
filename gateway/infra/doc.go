// Package infra implementa os componentes concretos do gateway:
//
//   - RouteTable: resolução por prefixo (o mais longo vence), imutável
//   - Forwarder: reescreve path/host e repassa ao backend com deadline
//   - ErrorKind: rótulo curto da falha de transporte, só para log
package infra
