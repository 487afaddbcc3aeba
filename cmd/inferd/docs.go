package main

// General API documentation for swaggo. Build with -tags swagger to serve it.
//
// @title           inferd API
// @version         1.0
// @description     HTTP API for chunked model upload, durable artifact storage and budget-bounded text generation.
//
// @contact.name   inferd maintainers
// @contact.url    https://github.com/your-org/inferd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
