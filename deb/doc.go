// Package deb holds the Debian binary package format knowledge used by the
// staging builder: control-file rendering and parsing, maintainer-script and
// conffiles rendering, architecture names, and an in-process .deb writer and
// reader built on the ar format.
//
// # Maintainer scripts
//
// dpkg runs the four maintainer scripts with the following arguments:
//
//	Action    Script    Arguments
//	install   preinst   install
//	          postinst  configure
//	upgrade   prerm     upgrade <version>     (old package)
//	          preinst   upgrade <version>     (new package)
//	          postinst  configure <version>   (new package)
//	remove    prerm     remove
//	          postrm    remove
//	purge     postrm    purge
//
// Scripts rendered by RenderScript always end with "exit 0", so the last
// command of a script body never decides the outcome of a dpkg operation.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-maintainerscripts.html
package deb
