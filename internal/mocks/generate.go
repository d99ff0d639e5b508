package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Source --dir ../domain/match --output domain/match --outpkg matchmock --filename source_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name IdentityLookup --dir ../domain/match --output domain/match --outpkg matchmock --filename identity_lookup_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name TextCompleter --dir ../domain/digest --output domain/digest --outpkg digestmock --filename text_completer_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name ImageGenerator --dir ../domain/digest --output domain/digest --outpkg digestmock --filename image_generator_mock.go
